// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package keys derives stable store keys from dataset source paths.
// Each dataset convention is a pure function: the same source path under
// the same convention always yields the same key, across runs and across
// operating systems.
package keys

import (
	"fmt"
	"io"
	"path"
	"strings"
)

// Func maps a source identifier (a file path from the manifest) to its
// store key.
type Func func(source string) string

// Convention names for Parser. ConventionDefault strips directory and
// extension; the others are dataset-specific layouts.
const (
	ConventionDefault = "default"
	ConventionWebvid  = "webvid"
	ConventionAnetQA  = "anetqa"
)

// Conventions lists the supported convention names.
func Conventions() []string {
	return []string{ConventionDefault, ConventionWebvid, ConventionAnetQA}
}

// Parser returns the key function for the named convention. An unknown
// name produces a single warning on w and falls back to the default;
// selecting a convention must never abort extraction. An empty name also
// selects the default, with a reminder that keys will be bare basenames.
func Parser(convention string, w io.Writer) Func {
	switch convention {
	case "", ConventionDefault:
		if convention == "" && w != nil {
			fmt.Fprintln(w, "warning: no dataset convention given, using basenames without extension as feature keys")
		}
		return baseName
	case ConventionWebvid:
		return lastTwoSegments
	case ConventionAnetQA:
		return stripTaggedPrefix
	default:
		if w != nil {
			fmt.Fprintf(w, "warning: dataset convention %q is not supported, using basenames without extension as feature keys\n", convention)
		}
		return baseName
	}
}

// Derive applies the named convention to one source path. Unknown
// conventions fall back to the default without a warning; callers that
// want the warning use Parser once and reuse the function.
func Derive(source, convention string) string {
	return Parser(convention, nil)(source)
}

// normalize maps Windows-style separators to "/" so keys are portable
// between the machine that writes the store and the one that reads it.
func normalize(source string) string {
	return strings.ReplaceAll(source, `\`, "/")
}

// baseName strips directory and extension: "b/clip1.mp4" -> "clip1".
func baseName(source string) string {
	s := normalize(source)
	base := path.Base(s)
	return strings.TrimSuffix(base, path.Ext(base))
}

// lastTwoSegments keeps the parent directory as part of the key:
// "data/videos/00123/clip.mp4" -> "00123/clip". WebVid organizes clips
// in per-group subdirectories, and basenames alone would collide.
func lastTwoSegments(source string) string {
	s := normalize(source)
	s = strings.TrimSuffix(s, path.Ext(s))
	segs := strings.Split(s, "/")
	if len(segs) < 2 {
		return s
	}
	return strings.Join(segs[len(segs)-2:], "/")
}

// stripTaggedPrefix drops the fixed two-character leading tag from the
// base name: "v_abc123.mp4" -> "abc123". ActivityNet-QA identifiers
// carry a non-semantic "v_" prefix.
func stripTaggedPrefix(source string) string {
	key := baseName(source)
	if len(key) <= 2 {
		return key
	}
	return key[2:]
}
