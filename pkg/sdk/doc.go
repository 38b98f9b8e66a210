// Package ragline is the Go client for the ragline HTTP API.
//
// A Client is created with the server base URL and the acting user id, then
// exposes one method per API operation:
//
//	client, err := ragline.New("http://localhost:8080", ragline.WithUserID("u1"))
//	if err != nil { ... }
//	doc, err := client.Upload(ctx, "report.pdf", data)
//	resp, err := client.Query(ctx, ragline.QueryRequest{Question: "..."})
//
// API errors are returned as *APIError carrying the HTTP status and the
// machine-readable error code.
package ragline
