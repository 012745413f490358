package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/audio"
	"github.com/rknn-assistant/SenseVoiceSmall-RKNN2-API/internal/config"
)

// ExecEngine shells out to the external RKNN runner binary for each
// inference call. The scaled tensor is handed over as a 16kHz mono WAV temp
// file; the runner prints a JSON result on stdout.
type ExecEngine struct {
	cmd []string
	cfg config.InferenceConfig
}

type execResult struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Emotion  string    `json:"emotion"`
	Event    string    `json:"event"`
	Segments []Segment `json:"segments"`
}

// NewExecEngine parses the configured runner command
func NewExecEngine(cfg config.InferenceConfig) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse inference command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("inference command is empty")
	}
	return &ExecEngine{cmd: args, cfg: cfg}, nil
}

// Load verifies the runner binary and model artifacts are reachable
func (e *ExecEngine) Load(ctx context.Context) error {
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return fmt.Errorf("inference runner not found: %w", err)
	}
	if _, err := os.Stat(e.cfg.ModelPath); err != nil {
		return fmt.Errorf("model path not accessible: %w", err)
	}
	return nil
}

// Infer runs the external runner over one scaled tensor. The caller (the
// scheduler) guarantees calls are serial; the runner holds the accelerator
// core for the duration of the process.
func (e *ExecEngine) Infer(ctx context.Context, req *Request) (*Result, error) {
	file, err := os.CreateTemp("", "sensevoice_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writeTensorWAV(file, req.Tensor); err != nil {
		return nil, err
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", file.Name(), "--model", e.cfg.ModelPath)
	if req.Language != "" {
		if code, ok := languageCodes[req.Language]; ok {
			args = append(args, "--language", strconv.Itoa(code))
		}
	}
	if req.UseITN {
		args = append(args, "--itn")
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("inference runner failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}

	return &Result{
		Text:     resp.Text,
		Language: resp.Language,
		Emotion:  resp.Emotion,
		Event:    resp.Event,
		Segments: resp.Segments,
	}, nil
}

// Close releases nothing; the runner is a per-call process
func (e *ExecEngine) Close() error {
	return nil
}

// writeTensorWAV converts the normalized float samples back to 16-bit PCM
// and writes a WAV file the runner's frontend can read.
func writeTensorWAV(file *os.File, tensor *audio.ScaledTensor) error {
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: tensor.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(tensor.Samples)),
	}
	for i, v := range tensor.Samples {
		buffer.Data[i] = int(v * 32767)
	}

	encoder := wav.NewEncoder(file, tensor.SampleRate, 16, 1, 1)
	if err := encoder.Write(buffer); err != nil {
		return fmt.Errorf("encode tensor wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize tensor wav: %w", err)
	}
	return nil
}
