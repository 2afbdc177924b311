/*
Package gconf implements the daemon configuration.

Configuration is loaded once at startup from an optional file, ESCROWD_*
environment variables and command line flags, validated and then passed
explicitly to every component that needs it.

A few values must never change for the lifetime of the data directory, because
they are part of already negotiated settlement transactions. Those are pinned
in the database with Pin and any attempt to start with different values fails.
*/
package gconf
