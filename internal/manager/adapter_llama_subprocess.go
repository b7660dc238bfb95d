package manager

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Readiness and shutdown timings for spawned servers.
const (
	spawnReadyTimeout = 120 * time.Second
	spawnStopGrace    = 5 * time.Second
)

// llamaSubprocessAdapter spawns and manages a llama-server per model path,
// bound to one device through CUDA_VISIBLE_DEVICES.
type llamaSubprocessAdapter struct {
	cfg        ManagerConfig
	mu         sync.Mutex
	procs      map[string]*procInfo // key: modelPath
	httpClient *http.Client
	publisher  EventPublisher
	log        zerolog.Logger
}

type procInfo struct {
	cmd     *exec.Cmd
	baseURL string
	ready   bool
	pid     int
	done    chan struct{}
}

// NewLlamaSubprocessAdapter constructs a subprocess-backed adapter.
func NewLlamaSubprocessAdapter(cfg ManagerConfig) InferenceAdapter {
	if strings.TrimSpace(cfg.LlamaHost) == "" {
		cfg.LlamaHost = defaultLlamaHost
	}
	// Timeout=0: all calls carry context deadlines.
	return &llamaSubprocessAdapter{
		cfg:        cfg,
		procs:      make(map[string]*procInfo),
		httpClient: &http.Client{Timeout: 0},
		publisher:  noopPublisher{},
		log:        cfg.Logger.With().Str("adapter", "llama_subprocess").Int("device", cfg.Device).Logger(),
	}
}

// llamaSubprocessSession represents a loaded model served by a child process.
type llamaSubprocessSession struct {
	a         *llamaSubprocessAdapter
	modelPath string
	baseURL   string
}

func (a *llamaSubprocessAdapter) Start(ctx context.Context, modelPath string) (InferSession, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("modelPath is empty")
	}
	baseURL, err := a.ensureProcess(ctx, modelPath)
	if err != nil {
		return nil, err
	}
	return &llamaSubprocessSession{a: a, modelPath: modelPath, baseURL: baseURL}, nil
}

// openAICompletionRequest is the llama-server /v1/completions body.
type openAICompletionRequest struct {
	Model         string   `json:"model,omitempty"`
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   float32  `json:"temperature,omitempty"`
	TopP          float32  `json:"top_p,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Seed          int      `json:"seed,omitempty"`
	Stream        bool     `json:"stream"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
}

// openAIStreamResponse is one server-sent completion chunk.
type openAIStreamResponse struct {
	Choices []struct {
		Text  string `json:"text"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (s *llamaSubprocessSession) Generate(ctx context.Context, prompt string, params InferParams, onToken func(string) error) (FinalResult, error) {
	payload := openAICompletionRequest{
		Prompt:        prompt,
		MaxTokens:     params.MaxTokens,
		Temperature:   params.Temperature,
		TopP:          params.TopP,
		TopK:          params.TopK,
		Stop:          params.Stop,
		Seed:          params.Seed,
		Stream:        true,
		RepeatPenalty: params.RepeatPenalty,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return FinalResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return FinalResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FinalResult{}, ctx.Err()
		}
		return FinalResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return FinalResult{}, fmt.Errorf("llama server http error: %s: %s", resp.Status, string(b))
	}
	r := bufio.NewReader(resp.Body)
	var final FinalResult
	var content strings.Builder
	for {
		line, err := r.ReadString('\n')
		if l := strings.TrimSpace(line); strings.HasPrefix(strings.ToLower(l), "data:") {
			data := strings.TrimSpace(l[len("data:"):])
			if data == "[DONE]" {
				break
			}
			var msg openAIStreamResponse
			if e := json.Unmarshal([]byte(data), &msg); e == nil {
				if len(msg.Choices) > 0 {
					frag := msg.Choices[0].Text
					if frag == "" {
						frag = msg.Choices[0].Delta.Content
					}
					if frag != "" {
						content.WriteString(frag)
						if cbErr := onToken(frag); cbErr != nil {
							return final, cbErr
						}
					}
					if fr := msg.Choices[0].FinishReason; fr != "" {
						final.FinishReason = fr
					}
				}
				if msg.Usage != nil {
					final.Usage = Usage{PromptTokens: msg.Usage.PromptTokens, CompletionTokens: msg.Usage.CompletionTokens, TotalTokens: msg.Usage.TotalTokens}
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return final, ctx.Err()
			}
			return final, err
		}
	}
	final.Content = content.String()
	return final, nil
}

// Close stops the server backing this session so the device is free for the next model.
func (s *llamaSubprocessSession) Close() error { return s.a.Stop(s.modelPath) }

// binary resolves the llama-server executable.
func (a *llamaSubprocessAdapter) binary() (string, error) {
	bin := strings.TrimSpace(a.cfg.LlamaBin)
	if bin == "" {
		bin = defaultLlamaBin
	}
	p, err := exec.LookPath(bin)
	if err != nil {
		return "", ErrDependencyUnavailable(fmt.Sprintf("llama-server not found: %v", err))
	}
	return p, nil
}

func (a *llamaSubprocessAdapter) args(modelPath string, port int) []string {
	args := []string{
		"-m", modelPath,
		"--host", a.cfg.LlamaHost,
		"--port", strconv.Itoa(port),
	}
	if a.cfg.LlamaCtxSize > 0 {
		args = append(args, "-c", strconv.Itoa(a.cfg.LlamaCtxSize))
	}
	if a.cfg.LlamaNGL > 0 {
		args = append(args, "-ngl", strconv.Itoa(a.cfg.LlamaNGL))
	}
	if a.cfg.LlamaThreads > 0 {
		args = append(args, "-t", strconv.Itoa(a.cfg.LlamaThreads))
	}
	return append(args, a.cfg.LlamaExtraArgs...)
}

// deviceEnv pins the child to the manager's device.
func (a *llamaSubprocessAdapter) deviceEnv() []string {
	env := os.Environ()
	if a.cfg.Device >= 0 {
		env = append(env, "CUDA_VISIBLE_DEVICES="+strconv.Itoa(a.cfg.Device))
	}
	return env
}

// isHealthy checks if the llama-server at baseURL responds OK to /v1/models.
func (a *llamaSubprocessAdapter) isHealthy(ctx context.Context, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ensureProcess starts (or returns existing) llama-server for modelPath and waits readiness.
func (a *llamaSubprocessAdapter) ensureProcess(ctx context.Context, modelPath string) (string, error) {
	if _, base, ready, ok := a.getProcInfo(modelPath); ok {
		if ready && a.isHealthy(ctx, base, time.Second) {
			return base, nil
		}
		_ = a.Stop(modelPath)
	}

	bin, err := a.binary()
	if err != nil {
		return "", err
	}
	port, err := pickFreePort(a.cfg.LlamaHost)
	if err != nil {
		return "", err
	}
	baseURL := fmt.Sprintf("http://%s:%d", a.cfg.LlamaHost, port)

	cmd := exec.Command(bin, a.args(modelPath, port)...)
	cmd.Env = a.deviceEnv()
	// stderr is kept in memory; its tail is included on failure.
	var stderr syncBuffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start llama-server: %w", err)
	}
	pid := cmd.Process.Pid
	a.log.Info().Str("model", modelPath).Int("pid", pid).Int("port", port).Msg("llama-server started")
	a.publisher.Publish(Event{Name: "spawn_start", ModelID: modelPath, Fields: map[string]any{"pid": pid, "port": port}})

	p := &procInfo{cmd: cmd, baseURL: baseURL, pid: pid, done: make(chan struct{})}
	waitErrCh := make(chan error, 1)
	go func() {
		waitErrCh <- cmd.Wait()
		close(p.done)
	}()
	a.mu.Lock()
	a.procs[modelPath] = p
	a.mu.Unlock()

	deadline := time.Now().Add(spawnReadyTimeout)
	for {
		select {
		case werr := <-waitErrCh:
			a.forget(modelPath)
			tail := stderr.Tail(4096)
			a.log.Error().Err(werr).Str("model", modelPath).Int("pid", pid).Str("stderr", tail).Msg("llama-server exited before ready")
			fields := map[string]any{"pid": pid}
			if werr != nil {
				fields["error"] = werr.Error()
			}
			a.publisher.Publish(Event{Name: "spawn_exit", ModelID: modelPath, Fields: fields})
			return "", fmt.Errorf("llama-server exited before ready: %v; stderr tail: %s", werr, tail)
		case <-ctx.Done():
			_ = a.Stop(modelPath)
			return "", ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			_ = a.Stop(modelPath)
			a.publisher.Publish(Event{Name: "spawn_timeout", ModelID: modelPath, Fields: map[string]any{"pid": pid}})
			return "", fmt.Errorf("llama-server not ready in time: %s", baseURL)
		}
		if a.isHealthy(ctx, baseURL, time.Second) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	a.mu.Lock()
	p.ready = true
	a.mu.Unlock()
	a.log.Info().Str("model", modelPath).Int("pid", pid).Str("url", baseURL).Msg("llama-server ready")
	a.publisher.Publish(Event{Name: "spawn_ready", ModelID: modelPath, Fields: map[string]any{"pid": pid, "url": baseURL}})
	return baseURL, nil
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected addr: %s", l.Addr())
	}
	return addr.Port, nil
}

// getProcInfo returns a snapshot of the process serving modelPath.
func (a *llamaSubprocessAdapter) getProcInfo(modelPath string) (pid int, baseURL string, ready bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p := a.procs[modelPath]; p != nil {
		return p.pid, p.baseURL, p.ready, true
	}
	return 0, "", false, false
}

func (a *llamaSubprocessAdapter) forget(modelPath string) {
	a.mu.Lock()
	delete(a.procs, modelPath)
	a.mu.Unlock()
}

// Stop terminates the llama-server for modelPath, if present: SIGTERM first,
// then kill after a grace period.
func (a *llamaSubprocessAdapter) Stop(modelPath string) error {
	a.mu.Lock()
	p := a.procs[modelPath]
	delete(a.procs, modelPath)
	a.mu.Unlock()
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(spawnStopGrace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
	a.log.Info().Str("model", modelPath).Int("pid", p.pid).Msg("llama-server stopped")
	a.publisher.Publish(Event{Name: "spawn_stop", ModelID: modelPath, Fields: map[string]any{"pid": p.pid}})
	return nil
}

// StopAll terminates all managed subprocesses. Best effort.
func (a *llamaSubprocessAdapter) StopAll() {
	a.mu.Lock()
	paths := make([]string, 0, len(a.procs))
	for k := range a.procs {
		paths = append(paths, k)
	}
	a.mu.Unlock()
	for _, path := range paths {
		_ = a.Stop(path)
	}
}

// setPublisher installs an EventPublisher for emitting adapter events.
func (a *llamaSubprocessAdapter) setPublisher(p EventPublisher) {
	if p == nil {
		a.publisher = noopPublisher{}
		return
	}
	a.publisher = p
}

// syncBuffer is a bytes.Buffer safe for the exec copier goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Tail returns at most n trailing bytes.
func (b *syncBuffer) Tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
