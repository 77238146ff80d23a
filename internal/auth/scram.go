// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package auth builds the credential payload carried by the Authenticate
// package (§4.1, §6). Grounded on mongo/private/auth/sasl.go's SASL
// conversation, narrowed to the single round trip the transport allows:
// the handshake only ever sends one Authenticate and receives one
// Authenticated/NotAuthenticated, so only the SCRAM client-first message is
// produced here rather than a full multi-step conversation.
package auth

import (
	"fmt"

	"github.com/xdg-go/scram"

	"github.com/EventStore/EventStore-Client-Go/options"
)

// BuildAuthenticatePayload returns the bytes to place on an Authenticate
// package: a SCRAM-SHA-256 client-first message presenting the given
// credentials. The server is expected to validate it out-of-band (it owns
// the stored salted password) and reply with a single Authenticated or
// NotAuthenticated — there is no client-final message in this protocol, so
// the conversation is intentionally not carried to completion.
func BuildAuthenticatePayload(creds *options.Credentials) ([]byte, error) {
	if creds == nil {
		return nil, fmt.Errorf("auth: nil credentials")
	}

	client, err := scram.SHA256.NewClient(creds.Username, creds.Password, "")
	if err != nil {
		return nil, fmt.Errorf("auth: new scram client: %w", err)
	}

	conv := client.NewConversation()
	firstMessage, err := conv.Step("")
	if err != nil {
		return nil, fmt.Errorf("auth: scram client-first step: %w", err)
	}

	return []byte(firstMessage), nil
}
