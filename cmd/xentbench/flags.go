// Copyright 2025 go-xentropy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ajroetker/go-xentropy/internal/logger"
	"github.com/ajroetker/go-xentropy/xent"
)

var (
	batch      int64
	classes    int64
	smoothing  float64
	dtype      string
	workers    int64
	seed       int64
	configFile string
	logLevel   string
	logFormat  string
)

func commonShapeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "batch",
			Aliases:     []string{"b"},
			Usage:       "number of rows",
			Value:       128,
			Destination: &batch,
		},
		&cli.Int64Flag{
			Name:        "classes",
			Aliases:     []string{"c"},
			Usage:       "number of classes per row",
			Value:       32768,
			Destination: &classes,
		},
		&cli.Float64Flag{
			Name:        "smoothing",
			Aliases:     []string{"s"},
			Usage:       "label smoothing factor in [0, 1]",
			Value:       0.1,
			Destination: &smoothing,
		},
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "element type (float32, float64, float16, bfloat16)",
			Value:       "float32",
			Destination: &dtype,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Aliases:     []string{"w"},
			Usage:       "worker count, 0 uses all CPUs",
			Destination: &workers,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for input generation",
			Value:       42,
			Destination: &seed,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to a config.yaml overriding the default location",
			Destination: &configFile,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Text(os.Stderr, level)
}

func parseDType(s string) (xent.ScalarKind, error) {
	switch s {
	case "float16", "f16":
		return xent.F16, nil
	case "bfloat16", "bf16":
		return xent.BF16, nil
	case "float32", "f32":
		return xent.F32, nil
	case "float64", "f64":
		return xent.F64, nil
	}
	return 0, fmt.Errorf("unknown dtype %q", s)
}
