// Package compat performs an advisory compatibility scan of an installation's
// declared dependencies (requirements.txt or go.mod) and local extension
// modules against a target version. Every name is classified compatible
// unless a Rule says otherwise; the updater aborts only on Incompatible.
package compat
