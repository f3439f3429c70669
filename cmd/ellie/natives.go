package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chazu/ellie/pkg/bytecode"
	"github.com/chazu/ellie/vm"
)

// hostNatives are the functions the binary provides to every program.
// Programs only bind the ones they import.
func hostNatives(out io.Writer) []vm.NativeFunction {
	return []vm.NativeFunction{
		{
			Name:   "print",
			Params: []bytecode.Kind{bytecode.KindString},
			Return: bytecode.KindVoid,
			Callback: func(_ *vm.Isolate, args []bytecode.Value) vm.NativeAnswer {
				s, _ := args[0].AsString()
				if _, err := fmt.Fprintln(out, s); err != nil {
					return vm.Exception(1, err.Error())
				}
				return vm.Response(bytecode.Void())
			},
		},
		{
			Name:   "clock",
			Return: bytecode.KindInt,
			Callback: func(*vm.Isolate, []bytecode.Value) vm.NativeAnswer {
				return vm.Response(bytecode.Int(time.Now().UnixMilli()))
			},
		},
		{
			Name:   "getenv",
			Params: []bytecode.Kind{bytecode.KindString},
			Return: bytecode.KindString,
			Callback: func(_ *vm.Isolate, args []bytecode.Value) vm.NativeAnswer {
				name, _ := args[0].AsString()
				v, ok := os.LookupEnv(name)
				if !ok {
					return vm.Exception(2, "environment variable "+name+" is not set")
				}
				return vm.Response(bytecode.String(v))
			},
		},
	}
}

func newIsolate(c *cli) (*vm.Isolate, error) {
	iso := vm.NewIsolate(vm.WithLimits(c.m.Limits()))
	for _, nf := range hostNatives(c.stdout) {
		if err := iso.RegisterNative(nf); err != nil {
			return nil, err
		}
	}
	return iso, nil
}
