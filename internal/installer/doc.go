// Package installer deploys the Serial Vault payload.
//
// Two sources are supported. SnapInstaller installs the serial-vault snap
// from the store for the configured channel. PayloadInstaller deploys a
// tarball fetched from a swift container or a file/http(s) location,
// laying it out as:
//
//	/usr/lib/serial-vault     serial-vault, serial-vault-admin
//	/usr/share/serial-vault   static assets
//	/usr/bin                  launchers for both binaries
//	/etc/systemd/system       the service unit
//
// Selector picks PayloadInstaller whenever a payload or swift container is
// configured.
package installer
