// Copyright 2025 The uor-labs Authors
// This file is part of the uor-labs library.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"os"
	"reflect"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"
)

// These settings ensure that TOML keys use the same names as Go struct
// fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

type vmSettings struct {
	MaxSteps   uint64
	MaxThreads int64
	Input      []string
}

type checkpointSettings struct {
	Dir string
}

type uorvmSettings struct {
	VM         vmSettings
	Checkpoint checkpointSettings

	inputValues []*big.Int
}

func loadConfig(file string, cfg *uorvmSettings) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeSettings merges the config file (when given) with command-line flags;
// flags win for the step budget and checkpoint dir, and --input values are
// queued after the config file's input values.
func makeSettings(ctx *cli.Context) (*uorvmSettings, error) {
	cfg := &uorvmSettings{}
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, cfg); err != nil {
			return nil, err
		}
	}
	for _, dec := range cfg.VM.Input {
		vals, err := parseInputList(dec)
		if err != nil {
			return nil, err
		}
		cfg.inputValues = append(cfg.inputValues, vals...)
	}
	if ctx.IsSet(maxStepsFlag.Name) || cfg.VM.MaxSteps == 0 {
		cfg.VM.MaxSteps = ctx.Uint64(maxStepsFlag.Name)
	}
	if csv := ctx.String(inputFlag.Name); csv != "" {
		vals, err := parseInputList(csv)
		if err != nil {
			return nil, err
		}
		cfg.inputValues = append(cfg.inputValues, vals...)
	}
	if ctx.IsSet(checkpointDirFlag.Name) {
		cfg.Checkpoint.Dir = ctx.String(checkpointDirFlag.Name)
	}
	return cfg, nil
}
