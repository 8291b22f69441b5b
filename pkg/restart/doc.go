/*
Package restart brings a service back up on a newly applied release.

The strategy comes from the deployment profile:

	service-manager    systemd RestartUnit over D-Bus, waiting for the job to finish
	container-restart  exit with status 75 and let the runtime's restart policy respawn
	signal-self        send SIGHUP to the service process
	manual-only        nothing; ErrManualRestart tells the operator to do it

Exit and signal strategies fire after a short delay so the update run can
record its outcome and open the maintenance gate before the process goes
away. A failed restart never undoes an update; callers log it and move on.
*/
package restart
