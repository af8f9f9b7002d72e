/*
Package executor materializes stored requests and sends them over HTTP/1.1.

# Overview

An execution runs three stages in order:
  - resolve: {{name}} placeholders are replaced from a snapshot of the
    variable store (parser.VariableResolver)
  - sign: requests whose auth is AWS SigV4 get Authorization, X-Amz-Date,
    Host and, with temporary credentials, X-Amz-Security-Token
  - send: the Transport performs the exchange and captures the response

A failure in any stage is returned as *ExecutionError naming the stage.
Nothing is retried.

# Transport

Every Send builds its own http.Transport:
  - keep-alives disabled, no proxy, no transparent decompression
  - redirects are returned instead of followed
  - TLS is negotiated in DialTLSContext with ALPN pinned to http/1.1

Each connection is wrapped so the first 64KB read from the server are kept.
The final header block is parsed from those bytes to produce rawHeaders in
wire order with duplicates. If the block cannot be parsed the header map of
the response is used instead.

For HTTPS the negotiated cipher and the leaf certificate are reported:

	"peerCertificate": {
	  "subject": {"O": "Acme Co"},
	  "subjectaltname": "DNS:example.com, IP Address:127.0.0.1",
	  "valid_from": "Jan  1 00:00:00 1970 GMT",
	  "fingerprint256": "AB:CD:...",
	  ...
	}

Optional per-request TLS settings (CA file, client certificate,
InsecureSkipVerify) come from types.TLSConfig.

# Errors

Network failures are *TransportError. Hint carries a categorized message
such as "Connection refused - check if server is running and port is correct".

# Example Usage

	store := environment.NewStore(logger)
	store.Compose(project, workspace.SelectedVariants)

	exec := executor.New(store, executor.NewTransport(30*time.Second, logger), logger)
	result, err := exec.Execute(ctx, &req)
	if err != nil {
		var execErr *executor.ExecutionError
		if errors.As(err, &execErr) {
			fmt.Printf("%s failed: %v\n", execErr.Stage, execErr.Err)
		}
		return err
	}

	fmt.Printf("Status: %d %s\n", result.Response.StatusCode, result.Response.StatusMessage)

# Thread Safety

Execute is safe to call concurrently. Executions share only the read-only
variable snapshot.
*/
package executor
