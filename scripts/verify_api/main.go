package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func call(method, url, token string, body interface{}) (int, []byte) {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		log.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Add("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func login(apiAddr, user, role string) string {
	status, body := call(http.MethodPost, apiAddr+"/login", "", map[string]string{"user_id": user, "role": role})
	if status != http.StatusOK {
		log.Fatalf("login %s: %d %s", user, status, body)
	}
	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s token: %s...\n", user, resp.Token[:10])
	return resp.Token
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	svc := flag.String("service-token", "", "service token from scripts/issue_token (the API needs AUTH_DEV_LOGIN for test_user)")
	flag.Parse()
	if *svc == "" {
		log.Fatal("-service-token is required")
	}

	// 1. Login
	bob := login(*apiAddr, "test_user", "candidate")

	// 2. Send a notification through the collaborator seam
	status, body := call(http.MethodPost, *apiAddr+"/notify", *svc, map[string]interface{}{
		"target_user_id": "test_user",
		"type":           "application_status_changed",
		"payload":        map[string]string{"title": "Your application moved to interview", "action_url": "/applications/1"},
	})
	log.Printf("Notify: %d %s", status, body)

	// 3. Poll notifications; the messaging worker persists asynchronously
	for i := 0; i < 10; i++ {
		status, body = call(http.MethodGet, *apiAddr+"/notifications?unread=true", bob, nil)
		if status == http.StatusOK && string(bytes.TrimSpace(body)) != "[]" {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Printf("Notifications: %d %s", status, body)

	// 4. Conversations and presence
	status, body = call(http.MethodGet, *apiAddr+"/conversations", bob, nil)
	log.Printf("Conversations: %d %s", status, body)
	status, body = call(http.MethodGet, *apiAddr+"/presence?user=test_user", bob, nil)
	log.Printf("Presence: %d %s", status, body)
}
