package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	baseURL = "http://localhost:8080"
)

// Runs infer, dedup and graph against a running server. The target
// directory must hold followthemoney.ndjson and lie under the server root.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: test_integration <target-dir>")
		os.Exit(2)
	}
	target, err := filepath.Abs(os.Args[1])
	if err != nil {
		fmt.Printf("Invalid target: %v\n", err)
		os.Exit(2)
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	factual := filepath.Join(target, "followthemoney.ndjson")
	inferred := filepath.Join(target, "followthemoney.inferred.ndjson")
	deduped := filepath.Join(target, "followthemoney.inferred.dedup.ndjson")

	fmt.Println("1. Inferring mentions...")
	if !sendRequest("POST", "/infer", map[string]string{"factual": factual, "out": inferred}) {
		fmt.Println("FAILED: Infer")
		os.Exit(1)
	}
	fmt.Println("PASSED: Infer")

	fmt.Println("2. Deduplicating...")
	if !sendRequest("POST", "/dedup", map[string]string{"in": inferred, "out": deduped}) {
		fmt.Println("FAILED: Dedup")
		os.Exit(1)
	}
	fmt.Println("PASSED: Dedup")

	fmt.Println("3. Loading graph...")
	if !sendRequest("POST", "/graph", map[string]string{"path": deduped}) {
		fmt.Println("FAILED: Graph")
		os.Exit(1)
	}
	fmt.Println("PASSED: Graph")
}

func sendRequest(method, endpoint string, payload interface{}) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))

	return true
}
