package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"ghginventory.org/internal/remote"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log.SetFlags(0)
	var (
		httpBase = getenv("GHG_SMOKE_HTTP", "http://localhost:8080")
		grpcAddr = getenv("GHG_SMOKE_GRPC", "localhost:9090")
		email    = os.Getenv("GHG_ROOT_EMAIL")
		password = os.Getenv("GHG_ROOT_PASSWORD")
	)
	if email == "" || password == "" {
		log.Fatal("GHG_ROOT_EMAIL and GHG_ROOT_PASSWORD are required")
	}

	ctx, cancel := remote.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := login(ctx, httpBase, email, password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}

	client, err := remote.Dial(grpcAddr)
	if err != nil {
		log.Fatalf("dial %s: %v", grpcAddr, err)
	}
	defer client.Close()

	serving, err := client.Serving(ctx)
	if err != nil || !serving {
		log.Fatalf("ability service not serving (err=%v)", err)
	}

	checks := []struct {
		query remote.Query
		want  bool
	}{
		{remote.Query{Action: "manage", Subject: "all"}, true},
		{remote.Query{Action: "update", Subject: "User", Field: "companyRole"}, false},
		{remote.Query{Action: "delete", Subject: "Company", Instance: map[string]any{"companyRole": "Government"}}, false},
	}
	for _, c := range checks {
		got, err := client.Check(ctx, token, c.query)
		if err != nil {
			log.Fatalf("check %s %s: %v", c.query.Action, c.query.Subject, err)
		}
		if got != c.want {
			log.Fatalf("check %s %s %s: got %v, want %v", c.query.Action, c.query.Subject, c.query.Field, got, c.want)
		}
	}

	fmt.Printf("smoke test passed: %d ability checks against %s\n", len(checks), grpcAddr)
}

func login(ctx context.Context, base, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}
