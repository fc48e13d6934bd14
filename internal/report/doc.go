// Package report implements the ReportFetcher pipeline: fetch the HTML report for a parcel,
// render it to PDF through an external renderer and re-encode the renderer output.
//
// Each call to Fetcher.Fetch owns a private temp directory holding the HTML input and the
// rendered PDF. The directory is removed before Fetch returns, whatever the outcome, so
// concurrent calls never share files and nothing survives the request.
package report
