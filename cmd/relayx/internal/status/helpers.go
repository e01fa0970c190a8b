package status

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/tinyland-inc/relayx/cmd/relayx/internal"
)

func statusCmd(jsonOut bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/health", cfg.Gateway.Host, cfg.Gateway.Port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("✗ Relay is not running")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading status: %w", err)
	}

	if jsonOut {
		fmt.Println(string(body))
		return nil
	}

	var snapshot map[string]any
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return fmt.Errorf("error parsing status: %w", err)
	}

	fmt.Printf("✓ Relay is running at %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		if k == "status" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  • %s: %v\n", k, snapshot[k])
	}

	return nil
}
