// Package images queues image generation on a ComfyUI server and tracks the
// results.
package images

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ComfyClient drives a ComfyUI server over its HTTP API.
type ComfyClient struct {
	baseURL string
	http    *http.Client
}

func NewComfyClient(baseURL string) *ComfyClient {
	return &ComfyClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// workflow parameters, matching a stock text-to-image graph.
const (
	comfyCheckpoint     = "v1-5-pruned-emaonly.ckpt"
	comfyNegativePrompt = "blurry, distorted, low quality"
	comfySampler        = "euler"
	comfyScheduler      = "normal"
	comfySteps          = 20
	comfyCFGScale       = 7.0
	comfyWidth          = 512
	comfyHeight         = 512
	comfyFilenamePrefix = "kindred"
)

// QueuePrompt submits a text-to-image workflow and returns ComfyUI's prompt
// ID for later retrieval.
func (c *ComfyClient) QueuePrompt(ctx context.Context, textPrompt string) (string, error) {
	body, err := json.Marshal(map[string]any{"prompt": buildWorkflow(textPrompt)})
	if err != nil {
		return "", fmt.Errorf("marshaling workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building prompt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("queueing prompt: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("prompt request returned %d: %s", res.StatusCode, detail)
	}

	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding prompt response: %w", err)
	}
	if out.PromptID == "" {
		return "", fmt.Errorf("prompt response missing prompt_id")
	}
	return out.PromptID, nil
}

// FetchImage downloads the rendered image bytes for a prompt ID.
func (c *ComfyClient) FetchImage(ctx context.Context, promptID string) ([]byte, error) {
	u := c.baseURL + "/view?filename=" + url.QueryEscape(promptID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building view request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching image: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("view request returned %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// History checks whether a queued prompt has finished executing. When done,
// it returns the saved output filename.
func (c *ComfyClient) History(ctx context.Context, promptID string) (bool, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return false, "", fmt.Errorf("building history request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("fetching history: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return false, "", fmt.Errorf("history request returned %d", res.StatusCode)
	}

	var out map[string]struct {
		Outputs map[string]struct {
			Images []struct {
				Filename string `json:"filename"`
			} `json:"images"`
		} `json:"outputs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return false, "", fmt.Errorf("decoding history response: %w", err)
	}

	entry, ok := out[promptID]
	if !ok {
		return false, "", nil
	}
	for _, node := range entry.Outputs {
		if len(node.Images) > 0 {
			return true, node.Images[0].Filename, nil
		}
	}
	return false, "", nil
}

/// buildWorkflow assembles the node graph ComfyUI executes: text encoding,
// checkpoint load, sampling, VAE decode, save.
func buildWorkflow(textPrompt string) map[string]any {
	return map[string]any{
		"3": map[string]any{
			"inputs": map[string]any{
				"text": textPrompt,
				"clip": []any{"4", 0},
			},
			"class_type": "CLIPTextEncode",
		},
		"4": map[string]any{
			"inputs": map[string]any{
				"ckpt_name": comfyCheckpoint,
			},
			"class_type": "CheckpointLoaderSimple",
		},
		"5": map[string]any{
			"inputs": map[string]any{
				"seed":         0,
				"steps":        comfySteps,
				"cfg":          comfyCFGScale,
				"sampler_name": comfySampler,
				"scheduler":    comfyScheduler,
				"denoise":      1.0,
				"model":        []any{"4", 0},
				"positive":     []any{"3", 0},
				"negative":     []any{"6", 0},
				"latent_image": []any{"7", 0},
			},
			"class_type": "KSampler",
		},
		"6": map[string]any{
			"inputs": map[string]any{
				"text": comfyNegativePrompt,
				"clip": []any{"4", 0},
			},
			"class_type": "CLIPTextEncode",
		},
		"7": map[string]any{
			"inputs": map[string]any{
				"width":      comfyWidth,
				"height":     comfyHeight,
				"batch_size": 1,
			},
			"class_type": "EmptyLatentImage",
		},
		"8": map[string]any{
			"inputs": map[string]any{
				"samples": []any{"5", 0},
				"vae":     []any{"4", 2},
			},
			"class_type": "VAEDecode",
		},
		"9": map[string]any{
			"inputs": map[string]any{
				"filename_prefix": comfyFilenamePrefix,
				"images":          []any{"8", 0},
			},
			"class_type": "SaveImage",
		},
	}
}
