// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the process configuration from the environment and
// command-line flags. A Config is not modified after Load returns.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/flowmaster/internal/utils"
	"github.com/cloudwego/flowmaster/llm"
)

const (
	EnvAPIType        = "API_TYPE"
	EnvAPIKey         = "API_KEY"
	EnvModelName      = "MODEL_NAME"
	EnvBaseURL        = "BASE_URL"
	EnvTemperature    = "TEMPERATURE"
	EnvLLMTimeout     = "LLM_TIMEOUT"
	EnvVerbose        = "VERBOSE"
	EnvEnableMemory   = "ENABLE_MEMORY"
	EnvAddr           = "FLOWMASTER_ADDR"
	EnvPersonas       = "FLOWMASTER_PERSONAS"
	EnvPipeline       = "FLOWMASTER_PIPELINE"
	EnvMCPServers     = "FLOWMASTER_MCP_SERVERS"
	EnvMaxAttempts    = "MAX_STAGE_ATTEMPTS"
	EnvRequestTimeout = "REQUEST_TIMEOUT"

	DefaultAddr = ":8000"
)

type Config struct {
	Model llm.ModelConfig

	Verbose      bool
	EnableMemory bool

	// Addr is the HTTP listen address of `serve`.
	Addr string
	// PersonasDir holds local persona overrides; empty means embedded only.
	PersonasDir string
	// PipelineFile is a pipeline definition; empty means the embedded default.
	PipelineFile string
	// MCPServersFile configures the MCP servers behind personas' allowed-tools.
	MCPServersFile string

	MaxStageAttempts int
	// RequestTimeout bounds one HTTP pipeline request; zero means unbounded.
	RequestTimeout time.Duration
}

func Default() Config {
	return Config{
		EnableMemory: true,
		Addr:         DefaultAddr,
	}
}

// Load reads the environment through getenv, then lets flags registered by
// RegisterFlags override it. args are the flag arguments; pass nil to skip
// flag parsing.
func Load(getenv func(string) string, fs *flag.FlagSet, args []string) (Config, error) {
	c := Default()
	if err := c.fromEnv(getenv); err != nil {
		return Config{}, err
	}
	if fs != nil {
		c.RegisterFlags(fs)
		if err := fs.Parse(args); err != nil {
			return Config{}, err
		}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// FromEnv is Load over the process environment without flags.
func FromEnv() (Config, error) {
	return Load(os.Getenv, nil, nil)
}

func (c *Config) fromEnv(getenv func(string) string) error {
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get(EnvAPIType); v != "" {
		c.Model.APIType = llm.NewModelType(v)
		if c.Model.APIType == llm.ModelTypeUnknown {
			return fmt.Errorf("%s: unsupported model type %q", EnvAPIType, v)
		}
	}
	c.Model.APIKey = get(EnvAPIKey)
	c.Model.ModelName = get(EnvModelName)
	c.Model.BaseURL = get(EnvBaseURL)
	c.Addr = firstNonEmpty(get(EnvAddr), c.Addr)
	c.PersonasDir = get(EnvPersonas)
	c.PipelineFile = get(EnvPipeline)
	c.MCPServersFile = get(EnvMCPServers)

	var err error
	if v := get(EnvTemperature); v != "" {
		f, perr := strconv.ParseFloat(v, 32)
		if perr != nil {
			return utils.WrapError(perr, "parse %s", EnvTemperature)
		}
		t := float32(f)
		c.Model.Temperature = &t
	}
	if c.Model.Timeout, err = parseDuration(EnvLLMTimeout, get(EnvLLMTimeout)); err != nil {
		return err
	}
	if c.RequestTimeout, err = parseDuration(EnvRequestTimeout, get(EnvRequestTimeout)); err != nil {
		return err
	}
	if c.Verbose, err = parseBool(EnvVerbose, get(EnvVerbose), c.Verbose); err != nil {
		return err
	}
	if c.EnableMemory, err = parseBool(EnvEnableMemory, get(EnvEnableMemory), c.EnableMemory); err != nil {
		return err
	}
	if v := get(EnvMaxAttempts); v != "" {
		if c.MaxStageAttempts, err = strconv.Atoi(v); err != nil {
			return utils.WrapError(err, "parse %s", EnvMaxAttempts)
		}
	}
	return nil
}

// RegisterFlags binds flags whose defaults are the current values, so a flag
// that is not given keeps the environment setting.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "Verbose mode.")
	fs.BoolVar(&c.EnableMemory, "memory", c.EnableMemory, "Give memory-enabled roles the outputs of all earlier stages.")
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address.")
	fs.StringVar(&c.PersonasDir, "personas", c.PersonasDir, "Directory of persona overrides (*.md).")
	fs.StringVar(&c.PipelineFile, "pipeline", c.PipelineFile, "Pipeline definition file (yaml).")
	fs.StringVar(&c.MCPServersFile, "mcp-servers", c.MCPServersFile, "MCP servers file (yaml) for persona tools.")
	fs.IntVar(&c.MaxStageAttempts, "max-attempts", c.MaxStageAttempts, "Max attempts per stage for transient failures.")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Timeout of one HTTP pipeline request.")
	fs.Func("model-type", "Model API type (openai, openai-sdk, ark, claude, ollama, qwen, deepseek, mock).", func(s string) error {
		t := llm.NewModelType(s)
		if t == llm.ModelTypeUnknown {
			return fmt.Errorf("unsupported model type %q", s)
		}
		c.Model.APIType = t
		return nil
	})
	fs.StringVar(&c.Model.ModelName, "model", c.Model.ModelName, "Model name, like gpt-4o-mini.")
	fs.StringVar(&c.Model.BaseURL, "base-url", c.Model.BaseURL, "Model API base URL.")
	fs.DurationVar(&c.Model.Timeout, "llm-timeout", c.Model.Timeout, "Timeout of one model call.")
}

// UseMock switches the collaborator to scripted replies.
func (c *Config) UseMock() {
	c.Model.APIType = llm.ModelTypeMock
}

func (c Config) Validate() error {
	if c.MaxStageAttempts < 0 {
		return fmt.Errorf("max stage attempts must not be negative, got %d", c.MaxStageAttempts)
	}
	return nil
}

// ValidateModel checks the settings needed to call a real model.
func (c Config) ValidateModel() error {
	switch c.Model.APIType {
	case llm.ModelTypeMock:
		return nil
	case llm.ModelTypeUnknown:
		return fmt.Errorf("env %s is required", EnvAPIType)
	}
	if c.Model.ModelName == "" {
		return fmt.Errorf("env %s is required", EnvModelName)
	}
	if c.Model.APIKey == "" && c.Model.APIType != llm.ModelTypeOllama {
		return fmt.Errorf("env %s is required", EnvAPIKey)
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and bare seconds ("600").
func parseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, utils.WrapError(err, "parse %s", key)
	}
	return d, nil
}

func parseBool(key, v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, utils.WrapError(err, "parse %s", key)
	}
	return b, nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
