// Package main provides a CI-friendly smoke test for a running kpauth server.
//
// It validates:
//   - login with rememberDevice sets session and device cookies
//   - /auth/me resolves the session
//   - /auth/refresh mints a new session from the device cookies
//   - the session guard refreshes silently when the session cookie is gone
//   - device listing and logout
//
// The account must exist (kpauthctl create).
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type smokeClient struct {
	base        string
	http        *http.Client
	fingerprint string
	verbose     bool

	// Cookies are kept by hand: the server marks them Secure, which a jar
	// would withhold over plain http.
	cookies map[string]string
}

func main() {
	var (
		baseURL     = flag.String("url", "http://127.0.0.1:8080", "server base URL")
		email       = flag.String("email", "", "account email")
		password    = flag.String("password", "", "account password")
		fingerprint = flag.String("fingerprint", "kpauth-smoke", "device fingerprint to present")
		timeout     = flag.Duration("timeout", 7*time.Second, "per-request timeout")
		verbose     = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if *email == "" || *password == "" {
		fatalf("-email and -password are required")
	}

	c := &smokeClient{
		base:        strings.TrimRight(*baseURL, "/"),
		http:        &http.Client{Timeout: *timeout},
		fingerprint: *fingerprint,
		verbose:     *verbose,
		cookies:     map[string]string{},
	}

	status, body := c.post("/auth/login", map[string]any{
		"email":          *email,
		"password":       *password,
		"rememberDevice": true,
		"deviceName":     "smoke",
	})
	expectStatus("login", status, http.StatusOK, body)
	for _, name := range []string{"session", "device_id", "device_token"} {
		if c.cookies[name] == "" {
			fatalf("login did not set cookie %q", name)
		}
	}

	status, body = c.get("/auth/me")
	expectStatus("me", status, http.StatusOK, body)
	var me struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &me); err != nil || me.Email == "" {
		fatalf("me: bad body %s (%v)", body, err)
	}

	first := c.cookies["session"]
	status, body = c.post("/auth/refresh", nil)
	expectStatus("refresh", status, http.StatusOK, body)
	if c.cookies["session"] == first {
		fatalf("refresh did not rotate the session cookie")
	}

	delete(c.cookies, "session")
	status, body = c.get("/devices/")
	expectStatus("devices via guard refresh", status, http.StatusOK, body)
	if c.cookies["session"] == "" {
		fatalf("guard refresh did not set a session cookie")
	}
	var devices []map[string]any
	if err := json.Unmarshal(body, &devices); err != nil || len(devices) == 0 {
		fatalf("devices: bad body %s (%v)", body, err)
	}

	status, body = c.post("/auth/logout", nil)
	expectStatus("logout", status, http.StatusOK, body)

	status, body = c.get("/auth/me")
	expectStatus("me after logout", status, http.StatusUnauthorized, body)

	fmt.Println("OK: auth smoke passed")
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("url missing host")
	}
	return nil
}

func (c *smokeClient) get(path string) (int, []byte) {
	return c.do(http.MethodGet, path, nil)
}

func (c *smokeClient) post(path string, body any) (int, []byte) {
	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal %s: %v", path, err)
		}
		r = bytes.NewReader(b)
	}
	return c.do(http.MethodPost, path, r)
}

func (c *smokeClient) do(method, path string, body io.Reader) (int, []byte) {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Fingerprint", c.fingerprint)
	for name, v := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: v})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	for _, ck := range resp.Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck.Value
	}

	if c.verbose {
		fmt.Printf("%s %s -> %d %s\n", method, path, resp.StatusCode, bytes.TrimSpace(out))
	}
	return resp.StatusCode, out
}

func expectStatus(step string, got, want int, body []byte) {
	if got != want {
		fatalf("%s: status=%d want=%d body=%s", step, got, want, bytes.TrimSpace(body))
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
