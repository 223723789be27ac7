package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"

	"ghginventory.org/internal/demo"
)

func main() {
	var (
		baseURL  = flag.String("base-url", "http://localhost:8080", "API base URL")
		workers  = flag.Int("workers", 4, "Concurrent worker count")
		duration = flag.Duration("duration", time.Minute, "Duration of the run")
		password = flag.String("password", os.Getenv("GHG_DEMO_PASSWORD"), "Password shared by the demo users")
		seed     = flag.Int64("seed", 0, "Generator seed (0 = time based)")
	)
	flag.Parse()

	if *password == "" {
		log.Fatal("missing demo password: provide via -password or GHG_DEMO_PASSWORD")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sc := demo.RegistryScenario()
	client := &http.Client{Timeout: 10 * time.Second}

	tokens := make(map[string]string, len(sc.Users))
	for _, email := range sc.Emails() {
		token, err := login(ctx, client, *baseURL, email, *password)
		if err != nil {
			log.Fatalf("login %s: %v", email, err)
		}
		tokens[email] = token
	}
	log.Printf("load run: base=%s workers=%d duration=%s users=%d", *baseURL, *workers, *duration, len(tokens))

	var (
		genMu     sync.Mutex
		generator = demo.NewGenerator(sc, *seed)
		counter   demo.Counter
		wg        sync.WaitGroup
		deadline  = time.Now().Add(*duration)
	)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id*9973)))
			for time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return
				default:
				}
				genMu.Lock()
				next := generator.Next()
				genMu.Unlock()

				status, err := send(ctx, client, *baseURL, tokens[next.Email], next)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						log.Printf("worker %d %s %s: %v", id, next.Method, next.Path, err)
					}
					counter.Fail()
					continue
				}
				counter.Add(status)
				switch status {
				case http.StatusTooManyRequests:
					time.Sleep(250 * time.Millisecond)
				case http.StatusInternalServerError:
					log.Printf("worker %d %s %s: server error", id, next.Method, next.Path)
				}
				time.Sleep(time.Duration(20+rnd.Intn(80)) * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	log.Printf("run complete: %d requests (%s)", counter.Total(), counter.String())
	if counter.Count(http.StatusInternalServerError) > 0 {
		os.Exit(1)
	}
}

func send(ctx context.Context, client *http.Client, base, token string, r demo.Request) (int, error) {
	var body io.Reader
	if r.Body != nil {
		buf, err := json.Marshal(r.Body)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, base+r.Path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func login(ctx context.Context, client *http.Client, base, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/auth/login", base), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("login endpoint: %s", resp.Status)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("empty token returned")
	}
	return out.AccessToken, nil
}
