/*
Package profile detects the deployment environment of the installation.

Detection is a small ordered table of rules evaluated top to bottom; the first
rule that matches decides the environment and the restart strategy:

	rule              signal                                         environment            restart
	container         /.dockerenv, /run/.containerenv, $container,   container              container-restart
	                  docker/kubepods/containerd/lxc in /proc/1/cgroup
	user-namespace    /proc/self/uid_map is not the identity map     restricted-container   signal-self
	service-manager   $INVOCATION_ID, $NOTIFY_SOCKET, or a configured host-service           service-manager
	                  unit while systemd is the init system
	source-checkout   .git under the install root                    developer-checkout     signal-self
	(none)                                                           unknown                manual-only

The install root is resolved separately: explicit override, then the enclosing
git checkout, then conventional paths (/app, /opt/<name>, /srv/<name>,
/usr/local/<name>), then the working directory.

All filesystem and environment access goes through the Host interface so the
table can be tested with an in-memory filesystem. Detect never fails.
*/
package profile
