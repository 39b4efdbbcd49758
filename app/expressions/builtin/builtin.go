package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pctasks/app/expressions"
	"pctasks/app/secrets"
)

const (
	LocalFile = "local.file"
	GetToken  = "pc.get_token"
)

// SubmitFunctions returns the functions available while a workflow document
// is resolved at submit time. local.file reads paths relative to dir.
func SubmitFunctions(dir string, tokens secrets.TokenProvider) map[string]expressions.Function {
	funcs := map[string]expressions.Function{
		LocalFile: localFile(dir),
	}
	if tokens != nil {
		funcs[GetToken] = getToken(tokens)
	}
	return funcs
}

// DriverFunctions are the submit time functions available to a driver,
// which never reads local files.
func DriverFunctions(tokens secrets.TokenProvider) map[string]expressions.Function {
	funcs := map[string]expressions.Function{}
	if tokens != nil {
		funcs[GetToken] = getToken(tokens)
	}
	return funcs
}

func localFile(dir string) expressions.Function {
	return func(ctx context.Context, args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected one path argument, got %d", len(args))
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("path must be a string")
		}
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

func getToken(tokens secrets.TokenProvider) expressions.Function {
	return func(ctx context.Context, args []interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected account and container arguments, got %d", len(args))
		}
		account, ok1 := args[0].(string)
		container, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("account and container must be strings")
		}
		return tokens.GetToken(ctx, account, container)
	}
}
