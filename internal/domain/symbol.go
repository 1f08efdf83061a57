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

package domain

// Symbol is an equity ticker: 1 to 10 uppercase ASCII letters plus dot
// (class shares such as BRK.B). Equality is by value; a Symbol obtained from
// NewSymbol is always well-formed.
type Symbol string

const maxSymbolLen = 10

// NewSymbol validates and returns a ticker symbol.
func NewSymbol(s string) (Symbol, error) {
	if len(s) == 0 {
		return "", validation("symbol", "symbol_nonempty", "symbol must not be empty")
	}
	if len(s) > maxSymbolLen {
		return "", validation("symbol", "symbol_length", "symbol %q exceeds %d characters", s, maxSymbolLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && c != '.' {
			return "", validation("symbol", "symbol_charset", "symbol %q contains %q; only A-Z and '.' are allowed", s, c)
		}
	}
	return Symbol(s), nil
}

func (s Symbol) String() string { return string(s) }
