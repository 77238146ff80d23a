// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package tlsconfig builds a *tls.Config from options.TLS, grounded on
// core/connection.go's configureTLS helper in the teacher driver.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ocsp"

	"github.com/EventStore/EventStore-Client-Go/options"
)

// Build constructs a *tls.Config from cfg. A nil cfg yields a nil result
// (plaintext connection).
func Build(cfg *options.TLS) (*tls.Config, error) {
	if cfg == nil {
		return nil, nil
	}

	tc := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: load CA pool: %w", err)
		}
		tc.RootCAs = pool
	}

	if cfg.CertFile != "" {
		cert, err := loadKeyPair(cfg.CertFile, cfg.KeyFile, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: load client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// loadKeyPair loads a certificate/key pair, transparently decrypting a
// PKCS#8-encrypted private key via youmark/pkcs8 when passphrase is set —
// crypto/tls's own loader only understands legacy PKCS#1/SEC1 encrypted PEM
// blocks, which OpenSSL 3 no longer emits by default.
func loadKeyPair(certFile, keyFile, passphrase string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	if passphrase == "" {
		keyPEM, err := os.ReadFile(keyFile)
		if err != nil {
			return tls.Certificate{}, err
		}
		return tls.X509KeyPair(certPEM, keyPEM)
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return tls.Certificate{}, fmt.Errorf("no private key PEM block found in %s", keyFile)
	}
	key, err := pkcs8.ParsePKCS8PrivateKey(keyBlock.Bytes, []byte(passphrase))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse encrypted pkcs8 key: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return tls.Certificate{}, fmt.Errorf("no certificate PEM block found in %s", certFile)
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse client certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{block.Bytes},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// VerifyStapledResponse checks a stapled OCSP response against the peer's
// verified chain after the TLS handshake completes. It is a no-op when the
// peer stapled nothing, since OCSPStapling is advisory rather than a hard
// requirement in this revision.
func VerifyStapledResponse(cs tls.ConnectionState) error {
	if len(cs.OCSPResponse) == 0 || len(cs.VerifiedChains) == 0 {
		return nil
	}

	chain := cs.VerifiedChains[0]
	if len(chain) < 2 {
		return nil
	}

	resp, err := ocsp.ParseResponseForCert(cs.OCSPResponse, chain[0], chain[1])
	if err != nil {
		return fmt.Errorf("tlsconfig: parse stapled OCSP response: %w", err)
	}

	if resp.Status == ocsp.Revoked {
		return fmt.Errorf("tlsconfig: peer certificate revoked at %s", resp.RevokedAt)
	}
	return nil
}
