// Package fetcher downloads regulatory archives over HTTP and FTP and parses
// uploaded CSV and XLSX tables.
package fetcher

const defaultUserAgent = "leadgen-cli/1.0"
