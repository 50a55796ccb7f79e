package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"time"
)

// NgrokAPI é a API local do agente ngrok.
const NgrokAPI = "http://127.0.0.1:4040/api/tunnels"

type tunnelList struct {
	Tunnels []struct {
		Proto     string `json:"proto"`
		PublicURL string `json:"public_url"`
	} `json:"tunnels"`
}

// StartNgrok inicia o ngrok na porta informada e devolve a URL https pública.
// O processo termina junto com o contexto.
func StartNgrok(ctx context.Context, port string) (string, error) {
	cmd := exec.CommandContext(ctx, "ngrok", "http", port)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("erro ao iniciar o ngrok: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	// o agente leva alguns instantes para abrir o túnel
	var lastErr error
	for i := 0; i < 10; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
		url, err := PublicURL(ctx, NgrokAPI)
		if err == nil {
			return url, nil
		}
		lastErr = err
	}
	return "", lastErr
}

// PublicURL consulta a API do ngrok e devolve o primeiro túnel https.
func PublicURL(ctx context.Context, apiURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("erro ao consultar o ngrok: %w", err)
	}
	defer resp.Body.Close()

	var result tunnelList
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("resposta invalida do ngrok: %w", err)
	}
	for _, t := range result.Tunnels {
		if t.Proto == "https" {
			return t.PublicURL, nil
		}
	}
	return "", errors.New("nenhum túnel HTTPS encontrado")
}
