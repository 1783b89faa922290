package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"galmuri-capture/src/apperr"
	"galmuri-capture/src/bridge"
)

const (
	probeTimeout    = 500 * time.Millisecond
	delegateTimeout = 2 * time.Minute
)

// delegateCapture asks a resident on addr to capture. delegated is false
// when no resident answers the health probe.
func delegateCapture(ctx context.Context, addr string) (bridge.CaptureResult, bool, error) {
	base := "http://" + addr
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return bridge.CaptureResult{}, false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("Delegation: no resident on %s: %v", addr, err)
		return bridge.CaptureResult{}, false, nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return bridge.CaptureResult{}, false, nil
	}

	callCtx, cancelCall := context.WithTimeout(ctx, delegateTimeout)
	defer cancelCall()
	req, err = http.NewRequestWithContext(callCtx, http.MethodPost, base+"/v1/call/"+bridge.MethodCaptureOnce, nil)
	if err != nil {
		return bridge.CaptureResult{}, false, err
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		return bridge.CaptureResult{}, true, fmt.Errorf("delegated capture failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Result *bridge.CaptureResult `json:"result"`
		Error  *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return bridge.CaptureResult{}, true, fmt.Errorf("decode resident reply: %w", err)
	}
	if body.Error != nil {
		return bridge.CaptureResult{}, true, &apperr.Error{Code: apperr.Code(body.Error.Code), Message: body.Error.Message}
	}
	if body.Result == nil {
		return bridge.CaptureResult{}, true, fmt.Errorf("resident reply has no result")
	}
	log.Printf("Delegated to resident on %s", addr)
	return *body.Result, true, nil
}
