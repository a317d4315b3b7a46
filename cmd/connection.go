// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/bartender/pkg/config"
	"github.com/Thermoquad/bartender/pkg/link"
	"golang.org/x/term"
)

// passwordEnv holds the WebSocket Basic auth password
const passwordEnv = "BARTENDER_PASSWORD"

// linkOptions turns the link section of cfg into open options. The
// password is only asked for when a WebSocket username is configured.
func linkOptions(cfg *config.Config) (link.Options, error) {
	opts := link.Options{
		Port:        cfg.Link.Port,
		Baud:        cfg.Link.Baud,
		URL:         cfg.Link.URL,
		Username:    cfg.Link.Username,
		SkipVerify:  cfg.Link.NoSSLVerify,
		ReadTimeout: cfg.ReadTimeout(),
		Keepalive:   cfg.Keepalive(),
	}

	if opts.URL != "" && opts.Username != "" {
		pw, err := readPassword()
		if err != nil {
			return opts, err
		}
		opts.Password = pw
	}
	return opts, nil
}

// readPassword returns $BARTENDER_PASSWORD, or asks on the terminal
// without echo
func readPassword() (string, error) {
	if pw, ok := os.LookupEnv(passwordEnv); ok {
		return pw, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set %s to supply the password", passwordEnv)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// openLink opens the configured link once. The returned options reopen the
// same link without asking for the password again.
func openLink(cfg *config.Config) (link.Link, link.Options, error) {
	opts, err := linkOptions(cfg)
	if err != nil {
		return nil, opts, err
	}

	l, err := link.Open(opts)
	if err != nil {
		return nil, opts, err
	}
	return l, opts, nil
}

// reopener returns an Opener for the link described by opts
func reopener(opts link.Options) link.Opener {
	return func() (link.Link, error) { return link.Open(opts) }
}

// linkBackoff returns the configured reopen backoff
func linkBackoff(cfg *config.Config) link.Backoff {
	lo, hi := cfg.Reconnect()
	return link.Backoff{Min: lo, Max: hi}
}
