/*
MIT License

Copyright (c) 2025 Mikael Schultz <mikael@conf-t.se>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/
package alias

import (
	"math/rand"
	"strconv"
	"strings"
)

// Escapes recognized in replacement text:
//
//	%R  uniform random integer in [0, 100]
//	%q  remainder of the original message after the first space,
//	    falling back to the invoking nick
//	%u  invoking nick
//	%n  flag: deliver as NOTICE instead of PRIVMSG
//	%m  wrap the result in a CTCP ACTION
//
// Substitution order is fixed: %R, %q, %u, then the %n flag, then the
// %m wrap. %m comes last so the ACTION framing also covers the other
// replacements.

// Substitute expands the escapes in a replacement text. sender is the
// full nick!user@host prefix; query is the message remainder after the
// first space. intn defaults to math/rand when nil.
func Substitute(repl, query, sender string, intn func(n int) int) (text string, notice bool) {
	if intn == nil {
		intn = rand.Intn
	}

	text = repl
	for strings.Contains(text, "%R") {
		text = strings.Replace(text, "%R", strconv.Itoa(intn(101)), 1)
	}

	nick, _, _ := strings.Cut(sender, "!")
	q := query
	if q == "" {
		q = nick
	}
	text = strings.ReplaceAll(text, "%q", q)
	text = strings.ReplaceAll(text, "%u", nick)

	if strings.Contains(text, "%n") {
		notice = true
		text = strings.ReplaceAll(text, "%n", "")
	}

	if strings.Contains(text, "%m") {
		text = strings.ReplaceAll(text, "%m", "")
		text = "\001ACTION " + strings.TrimSpace(text) + "\001"
	}

	return text, notice
}

// SubstituteOutbound applies the subset of escapes honored for bus
// messages injected into IRC channels (%R and %m).
func SubstituteOutbound(text string, intn func(n int) int) string {
	if intn == nil {
		intn = rand.Intn
	}
	for strings.Contains(text, "%R") {
		text = strings.Replace(text, "%R", strconv.Itoa(intn(101)), 1)
	}
	if strings.Contains(text, "%m") {
		text = strings.ReplaceAll(text, "%m", "")
		text = "\001ACTION " + strings.TrimSpace(text) + "\001"
	}
	return text
}
