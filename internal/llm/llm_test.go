package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	tests := []struct {
		name    string
		resp    *Response
		want    string
		wantErr bool
	}{
		{name: "nil", resp: nil, wantErr: true},
		{name: "prompt blocked", resp: &Response{PromptBlockReason: "SAFETY"}, wantErr: true},
		{name: "no candidates", resp: &Response{}, wantErr: true},
		{name: "no parts", resp: &Response{Candidates: []Candidate{{FinishReason: FinishSafety}}}, wantErr: true},
		{name: "joined parts", resp: &Response{Candidates: []Candidate{{Parts: []Part{{Text: "a"}, {Text: "b"}}}}}, want: "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resp.Text()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTextUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponseBlocked(t *testing.T) {
	var nilResp *Response
	assert.False(t, nilResp.Blocked())
	assert.False(t, (&Response{Candidates: []Candidate{{FinishReason: FinishSafety}}}).Blocked())
	assert.True(t, (&Response{Candidates: []Candidate{{FinishReason: FinishStop}, {FinishReason: FinishRecitation}}}).Blocked())
}

func TestFinishReasonNormal(t *testing.T) {
	assert.True(t, FinishStop.Normal())
	assert.True(t, FinishUnspecified.Normal())
	assert.False(t, FinishMaxTokens.Normal())
	assert.False(t, FinishRecitation.Normal())
}

func TestGeminiGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Forward kinematics..."}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "k", Model: "models/gemini-2.5-flash", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := g.Generate(context.Background(), Request{
		System: "be nice",
		Prompt: "Explain FK",
		Config: GenerationConfig{Temperature: 0.85, MaxOutputTokens: 1500, TopP: 0.95, TopK: 40},
		Safety: PermissiveSafety(),
	})
	require.NoError(t, err)

	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "Forward kinematics...", text)
	assert.Equal(t, FinishStop, resp.Candidates[0].FinishReason)

	cfg := got["generationConfig"].(map[string]any)
	assert.InDelta(t, 0.85, cfg["temperature"], 1e-9)
	assert.Equal(t, float64(1500), cfg["maxOutputTokens"])
	assert.InDelta(t, 0.95, cfg["topP"], 1e-6)
	assert.Equal(t, float64(40), cfg["topK"])
	assert.Len(t, got["safetySettings"], 4)
	assert.NotNil(t, got["systemInstruction"])
	assert.Len(t, got["contents"], 1)
}

func TestGeminiSkipsThoughtsAndReportsPromptBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"thinking","thought":true},{"text":"Answer"}]},"finishReason":"STOP"}],"promptFeedback":{"blockReason":"OTHER"}}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := g.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "OTHER", resp.PromptBlockReason)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, []Part{{Text: "Answer"}}, resp.Candidates[0].Parts)
}

func TestGeminiRecitationAndErrors(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"finishReason":"RECITATION"}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(GeminiConfig{APIKey: "k", Model: "m", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := g.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.True(t, resp.Blocked())
	_, err = resp.Text()
	assert.ErrorIs(t, err, ErrTextUnavailable)

	status = http.StatusTooManyRequests
	_, err = g.Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorContains(t, err, "429")
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(GeminiConfig{Model: "m"})
	assert.Error(t, err)
}

func TestOllamaGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","response":"Inverse kinematics...","done":true,"done_reason":"length"}`))
	}))
	defer srv.Close()

	o, err := NewOllama(srv.URL, "llama3")
	require.NoError(t, err)

	resp, err := o.Generate(context.Background(), Request{
		System: "sys",
		Prompt: "Explain IK",
		Config: GenerationConfig{Temperature: 0.7, MaxOutputTokens: 256, TopK: 40},
	})
	require.NoError(t, err)

	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "Inverse kinematics...", text)
	assert.Equal(t, FinishMaxTokens, resp.Candidates[0].FinishReason)

	assert.Equal(t, "sys", got["system"])
	assert.Equal(t, false, got["stream"])
	opts := got["options"].(map[string]any)
	assert.InDelta(t, 0.7, opts["temperature"], 1e-9)
	assert.Equal(t, float64(40), opts["top_k"])
	_, hasTopP := opts["top_p"]
	assert.False(t, hasTopP)
}
