/*
Package client is the HTTP client used by the refit CLI to drive a running
refit serve.

	c, err := client.NewClient("127.0.0.1:8470")
	if err != nil {
		return err
	}
	result, err := c.Start(ctx, "")
	if errors.Is(err, client.ErrBusy) {
		// another run is active
	}
	status, err := c.WaitForRun(ctx, result.RunID, time.Second, nil)

Non-2xx responses are returned as *APIError carrying the HTTP status and,
when the server classified the failure, its update error kind.
*/
package client
