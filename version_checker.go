package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	goversion "github.com/hashicorp/go-version"
)

const (
	versionURL          = "https://raw.githubusercontent.com/neuroview/neuroview/refs/heads/main/version.go"
	versionCheckTimeout = 10 * time.Second
)

var (
	// LatestVersion holds the newest published version, empty until a
	// check succeeds
	LatestVersion   string
	latestVersionMu sync.RWMutex
	// versionRegex matches the version constant in version.go
	versionRegex = regexp.MustCompile(`const\s+Version\s*=\s*"([^"]+)"`)
)

// GetLatestVersion returns the latest published version, or empty if no
// check has succeeded yet
func GetLatestVersion() string {
	latestVersionMu.RLock()
	defer latestVersionMu.RUnlock()
	return LatestVersion
}

func setLatestVersion(version string) {
	latestVersionMu.Lock()
	defer latestVersionMu.Unlock()
	LatestVersion = version
}

// fetchPublishedVersion fetches version.go from the main branch and
// extracts the version constant
func fetchPublishedVersion() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), versionCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", versionURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("NeuroView/%s", Version))

	client := &http.Client{Timeout: versionCheckTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch version file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := versionRegex.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read version file: %w", err)
	}
	return "", fmt.Errorf("version constant not found")
}

// checkVersion compares the running version against the published one and
// logs when an update is available. Never fatal.
func checkVersion() {
	published, err := fetchPublishedVersion()
	if err != nil {
		log.Printf("Warning: version check failed: %v", err)
		return
	}

	current, err := goversion.NewVersion(Version)
	if err != nil {
		log.Printf("Warning: cannot parse running version %q: %v", Version, err)
		return
	}
	latest, err := goversion.NewVersion(published)
	if err != nil {
		log.Printf("Warning: cannot parse published version %q: %v", published, err)
		return
	}

	setLatestVersion(published)
	if latest.GreaterThan(current) {
		log.Printf("A newer version is available: %s (running %s)", published, Version)
	}
}

// StartVersionChecker runs checkVersion immediately and then on the
// configured interval
func StartVersionChecker(enabled bool, intervalMinutes int) {
	if !enabled {
		return
	}

	go func() {
		checkVersion()

		ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			checkVersion()
		}
	}()
}
