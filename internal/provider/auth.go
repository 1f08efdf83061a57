// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package provider

// AuthStrategy mutates an outgoing request with vendor credentials. Auth is
// applied per call; strategies hold only immutable credential material and
// are safe for concurrent use.
type AuthStrategy interface {
	Apply(headers map[string]string, query map[string]string)
}

// HeaderTokenAuth carries key and secret in distinct request headers
// (the Alpaca style: APCA-API-KEY-ID / APCA-API-SECRET-KEY).
type HeaderTokenAuth struct {
	KeyHeader    string
	SecretHeader string
	Key          string
	Secret       string
}

func (a HeaderTokenAuth) Apply(headers map[string]string, _ map[string]string) {
	headers[a.KeyHeader] = a.Key
	if a.SecretHeader != "" {
		headers[a.SecretHeader] = a.Secret
	}
}

// QueryParamAuth carries key and secret in distinct query parameters.
type QueryParamAuth struct {
	KeyParam    string
	SecretParam string
	Key         string
	Secret      string
}

func (a QueryParamAuth) Apply(_ map[string]string, query map[string]string) {
	query[a.KeyParam] = a.Key
	if a.SecretParam != "" {
		query[a.SecretParam] = a.Secret
	}
}

// NoAuth is used by test vendors and public endpoints.
type NoAuth struct{}

func (NoAuth) Apply(map[string]string, map[string]string) {}
