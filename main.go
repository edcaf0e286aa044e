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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/cloudwego/flowmaster/internal/config"
	"github.com/cloudwego/flowmaster/internal/console"
	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/mcp"
	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/pipeline"
	"github.com/cloudwego/flowmaster/internal/server"
	"github.com/cloudwego/flowmaster/internal/workflow"
	"github.com/cloudwego/flowmaster/llm"
	"github.com/cloudwego/flowmaster/llm/tool"
	"github.com/cloudwego/flowmaster/version"
)

const Usage = `flowmaster <Action> [Idea] [Flags]
Action:
   serve        run the HTTP API
   run          run the pipeline once for the idea and print a summary
   mcp          run as a MCP server over stdio
   roles        list the pipeline stages and the loaded personas
   version      print the version of flowmaster
Environment:
   API_TYPE, API_KEY, MODEL_NAME, BASE_URL   model settings (flags override them)
   VERBOSE, ENABLE_MEMORY, FLOWMASTER_ADDR, FLOWMASTER_PERSONAS,
   FLOWMASTER_PIPELINE, FLOWMASTER_MCP_SERVERS, MAX_STAGE_ATTEMPTS,
   LLM_TIMEOUT, REQUEST_TIMEOUT, TEMPERATURE
`

func main() {
	flags := flag.NewFlagSet("flowmaster", flag.ExitOnError)

	flagHelp := flags.Bool("h", false, "Show help message.")
	flagMock := flags.Bool("mock", false, "Use scripted model replies; no API key needed.")
	flagJSON := flags.Bool("json", false, "Print the workflow response as JSON (run).")
	flagOutput := flags.String("o", "", "Write the planning document to this path, .md or .html (run).")

	flags.Usage = func() {
		fmt.Fprint(os.Stderr, Usage)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flags.PrintDefaults()
	}

	if len(os.Args) < 2 {
		flags.Usage()
		os.Exit(1)
	}
	action := strings.ToLower(os.Args[1])
	args := os.Args[2:]

	// the idea may come before the flags
	var idea string
	if action == "run" && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		idea, args = args[0], args[1:]
	}

	cfg, err := config.Load(os.Getenv, flags, args)
	if err != nil {
		log.Error("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *flagHelp {
		flags.Usage()
		os.Exit(0)
	}
	if cfg.Verbose {
		log.SetLogLevel(log.DebugLevel)
	}
	if *flagMock {
		cfg.UseMock()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch action {
	case "version":
		fmt.Fprintf(os.Stdout, "%s\n", version.Version)

	case "roles":
		reg, def, err := loadDefinition(cfg)
		if err != nil {
			log.Error("Failed to load personas: %v\n", err)
			os.Exit(1)
		}
		printRoles(reg, def)

	case "serve":
		svc, cleanup := mustService(ctx, cfg)
		defer cleanup()
		srv := server.New(svc, cfg.RequestTimeout)
		if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
			log.Error("Failed to serve: %v\n", err)
			os.Exit(1)
		}

	case "run":
		if idea == "" {
			idea = strings.Join(flags.Args(), " ")
		}
		if strings.TrimSpace(idea) == "" {
			log.Error("Argument Idea is required\n")
			os.Exit(1)
		}
		var opts []pipeline.Option
		if !*flagJSON {
			opts = append(opts, pipeline.WithObserver(console.Progress(os.Stderr)))
		}
		svc, cleanup := mustService(ctx, cfg, opts...)
		defer cleanup()

		resp, err := svc.GenerateWorkflow(ctx, idea, cfg.EnableMemory)
		if err != nil {
			log.Error("Failed to generate workflow: %v\n", err)
			os.Exit(1)
		}
		if *flagOutput != "" {
			if err := writeDocument(*flagOutput, resp); err != nil {
				log.Error("Failed to write document: %v\n", err)
				os.Exit(1)
			}
		}
		if *flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				log.Error("Failed to encode response: %v\n", err)
				os.Exit(1)
			}
		} else {
			fmt.Fprint(os.Stdout, console.Summary(resp))
		}

	case "mcp":
		svc, cleanup := mustService(ctx, cfg)
		defer cleanup()
		svr := mcp.NewServer(mcp.ServerOptions{
			ServerName:    "flowmaster",
			ServerVersion: version.Version,
			Verbose:       cfg.Verbose,
			Service:       svc,
		})
		if err := svr.ServeStdio(); err != nil {
			log.Error("Failed to run MCP server: %v\n", err)
			os.Exit(1)
		}

	default:
		flags.Usage()
		os.Exit(1)
	}
}

func loadDefinition(cfg config.Config) (*persona.Registry, pipeline.Definition, error) {
	reg := persona.NewRegistry()
	if cfg.PersonasDir != "" {
		reg.SetLocalDir(cfg.PersonasDir)
	}
	if err := reg.Load(); err != nil {
		return nil, pipeline.Definition{}, err
	}
	def := pipeline.DefaultDefinition()
	if cfg.PipelineFile != "" {
		var err error
		if def, err = pipeline.LoadDefinition(cfg.PipelineFile); err != nil {
			return nil, pipeline.Definition{}, err
		}
	}
	if cfg.MaxStageAttempts > 0 {
		def.MaxAttempts = cfg.MaxStageAttempts
	}
	return reg, def, nil
}

// mustService wires config, personas, the model and tools into a workflow
// service. The cleanup closes started MCP tool servers.
func mustService(ctx context.Context, cfg config.Config, opts ...pipeline.Option) (*workflow.Service, func()) {
	if err := cfg.ValidateModel(); err != nil {
		log.Error("%v (or pass -mock)\n", err)
		os.Exit(1)
	}
	reg, def, err := loadDefinition(cfg)
	if err != nil {
		log.Error("Failed to load pipeline: %v\n", err)
		os.Exit(1)
	}
	completer, err := llm.NewCompleter(ctx, cfg.Model)
	if err != nil {
		log.Error("Failed to create model: %v\n", err)
		os.Exit(1)
	}

	cleanup := func() {}
	var tools pipeline.ToolResolver
	if cfg.MCPServersFile != "" {
		servers, err := tool.LoadServers(cfg.MCPServersFile)
		if err != nil {
			log.Error("Failed to load MCP servers: %v\n", err)
			os.Exit(1)
		}
		box := tool.NewToolbox(servers)
		tools = box
		cleanup = func() {
			if err := box.Close(); err != nil {
				log.Error("Failed to close MCP servers: %v\n", err)
			}
		}
	}

	p, err := pipeline.Build(ctx, def, reg, completer, tools, opts...)
	if err != nil {
		cleanup()
		log.Error("Failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	log.Info("pipeline %s: %d stages, model %s", p.Name(), p.Len(), cfg.Model.APIType)
	return workflow.NewService(p, workflow.NewStore(workflow.DefaultCapacity)), cleanup
}

func writeDocument(path string, resp *workflow.Response) error {
	var doc string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		var err error
		if doc, err = workflow.HTML(resp); err != nil {
			return err
		}
	default:
		doc = workflow.Markdown(resp)
	}
	return os.WriteFile(path, []byte(doc), 0o644)
}

func printRoles(reg *persona.Registry, def pipeline.Definition) {
	stages := make(map[string]int, len(def.Stages))
	for i, r := range def.Stages {
		stages[string(r)] = i + 1
	}
	fmt.Fprintf(os.Stdout, "pipeline %s (max %d attempts per stage)\n\n", def.Name, def.MaxAttempts)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tROLE\tTITLE\tMEMORY\tITERATIONS\tSOURCE")
	for _, p := range reg.List() {
		stage := "-"
		switch {
		case stages[string(p.Role)] > 0:
			stage = fmt.Sprintf("%d", stages[string(p.Role)])
		case p.Role == def.Critic:
			stage = "critic"
		case p.Role == def.Improver:
			stage = "improver"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n", stage, p.Role, p.Title, p.Memory, p.MaxIterations, p.Source)
	}
	_ = w.Flush()
}
