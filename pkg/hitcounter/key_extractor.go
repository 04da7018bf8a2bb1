package hitcounter

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyExtractor derives the counter key for an HTTP request, typically the
// client's identity (IP address, API key, session).
type KeyExtractor func(*http.Request) (string, error)

// ExtractIP keys requests by the remote address, port stripped.
func ExtractIP() KeyExtractor {
	return func(r *http.Request) (string, error) {
		return remoteIP(r)
	}
}

// ExtractIPWithProxy keys requests by the first X-Forwarded-For entry, then
// X-Real-IP, then the remote address. Use it only behind a trusted proxy.
func ExtractIPWithProxy() KeyExtractor {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip, nil
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return "ip:" + ip, nil
		}
		return remoteIP(r)
	}
}

func remoteIP(r *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port
		ip = r.RemoteAddr
	}
	if ip == "" {
		return "", fmt.Errorf("%w: empty IP address", ErrKeyExtractionFailed)
	}
	return "ip:" + ip, nil
}

// ExtractHeader keys requests by the value of a header, e.g. X-API-Key.
func ExtractHeader(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		value := r.Header.Get(name)
		if value == "" {
			return "", fmt.Errorf("%w: header %s not found or empty", ErrKeyExtractionFailed, name)
		}
		return "header:" + name + ":" + value, nil
	}
}

// ExtractBearer keys requests by the token of an "Authorization: Bearer" header.
func ExtractBearer() KeyExtractor {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			return "", fmt.Errorf("%w: Authorization header not found", ErrKeyExtractionFailed)
		}
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return "", fmt.Errorf("%w: invalid Authorization header format", ErrKeyExtractionFailed)
		}
		if token = strings.TrimSpace(token); token == "" {
			return "", fmt.Errorf("%w: empty bearer token", ErrKeyExtractionFailed)
		}
		return "bearer:" + token, nil
	}
}

// ExtractCookie keys requests by a cookie value, e.g. a session id.
func ExtractCookie(name string) KeyExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(name)
		if err != nil {
			return "", fmt.Errorf("%w: cookie %s: %v", ErrKeyExtractionFailed, name, err)
		}
		if cookie.Value == "" {
			return "", fmt.Errorf("%w: cookie %s has empty value", ErrKeyExtractionFailed, name)
		}
		return "cookie:" + name + ":" + cookie.Value, nil
	}
}

// ExtractStatic puts every request under one key, counting traffic globally.
func ExtractStatic(key string) KeyExtractor {
	return func(*http.Request) (string, error) {
		if key == "" {
			return "", fmt.Errorf("%w: static key is empty", ErrKeyExtractionFailed)
		}
		return key, nil
	}
}

// ExtractComposite tries extractors in order and returns the first key.
//
//	extractor := ExtractComposite(
//	    ExtractHeader("X-API-Key"),
//	    ExtractIPWithProxy(),
//	)
func ExtractComposite(extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) (string, error) {
		if len(extractors) == 0 {
			return "", fmt.Errorf("%w: no extractors provided", ErrKeyExtractionFailed)
		}
		var lastErr error
		for _, extract := range extractors {
			key, err := extract(r)
			if err == nil && key != "" {
				return key, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			return "", fmt.Errorf("%w: all extractors returned empty key", ErrKeyExtractionFailed)
		}
		return "", fmt.Errorf("%w: all extractors failed: %v", ErrKeyExtractionFailed, lastErr)
	}
}

// keyExtractorKinds maps config names to constructors. Kinds that take an
// argument ("header:X-API-Key") set needsArg.
var keyExtractorKinds = map[string]struct {
	needsArg bool
	build    func(arg string) KeyExtractor
}{
	"ip":       {build: func(string) KeyExtractor { return ExtractIP() }},
	"ip-proxy": {build: func(string) KeyExtractor { return ExtractIPWithProxy() }},
	"bearer":   {build: func(string) KeyExtractor { return ExtractBearer() }},
	"header":   {needsArg: true, build: ExtractHeader},
	"cookie":   {needsArg: true, build: ExtractCookie},
	"static":   {needsArg: true, build: ExtractStatic},
}

// ParseKeyExtractorConfig creates a KeyExtractor from a configuration string:
// "ip", "ip-proxy", "bearer", "header:<Name>", "cookie:<Name>", "static:<key>".
// Several configs separated by "|" build a composite, e.g. "header:X-API-Key|ip".
func ParseKeyExtractorConfig(config string) (KeyExtractor, error) {
	if strings.Contains(config, "|") {
		var extractors []KeyExtractor
		for _, part := range strings.Split(config, "|") {
			extractor, err := ParseKeyExtractorConfig(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			extractors = append(extractors, extractor)
		}
		return ExtractComposite(extractors...), nil
	}

	kind, arg, hasArg := strings.Cut(config, ":")
	entry, ok := keyExtractorKinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key extractor type: %s", ErrInvalidConfig, kind)
	}
	if entry.needsArg && (!hasArg || arg == "") {
		return nil, fmt.Errorf("%w: %s extractor requires format '%s:<value>'", ErrInvalidConfig, kind, kind)
	}
	return entry.build(arg), nil
}
