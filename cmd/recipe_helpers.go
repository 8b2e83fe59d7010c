package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/sagemath/sage-spkg/pkg"
	"github.com/sagemath/sage-spkg/pkg/recipe"
)

const recipeCacheName = ".spkg.cache"

func loggerContext() (context.Context, *zerolog.Logger) {
	logger := zerolog.New(NewConsoleWriter())
	ctx := recipe.WithLogger(context.Background(), &logger)
	return ctx, &logger
}

// splitTaskArgs separates name=value option overrides from plain arguments.
func splitTaskArgs(args []string) ([]string, map[string]string) {
	plain := make([]string, 0, len(args))
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			plain = append(plain, part)
		}
	}

	return plain, options
}

// resolvePackageRoot turns the optional package-dir argument into the
// directory holding the spkg.star recipe. Without an argument the search
// starts at the current working directory.
func resolvePackageRoot(args []string) (string, error) {
	start := "."
	if len(args) > 0 {
		start = args[0]
	}

	return pkg.FindPackageRoot(start)
}

// loadRecipe parses the package recipe, using the gob cache next to the
// recipe when it matches the requested options and environment.
func loadRecipe(ctx context.Context, pkgRoot string, env *pkg.Env, options map[string]string) (*recipe.Recipe, error) {
	recipePath := filepath.Join(pkgRoot, "spkg.star")
	_, err := os.Stat(recipePath)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to read recipe %s", recipePath)
	}

	// the cache key covers the option overrides and the SAGE_* exports since
	// both end up baked into the parsed tasks
	cacheKey := map[string]string{}
	for k, v := range options {
		cacheKey[k] = v
	}
	for k, v := range env.Exports() {
		cacheKey[k] = v
	}

	cachePath := filepath.Join(pkgRoot, recipeCacheName)
	cacheStat, err := os.Stat(cachePath)
	if err == nil {
		recipeStat, sErr := os.Stat(recipePath)
		if sErr == nil && cacheStat.ModTime().After(recipeStat.ModTime()) {
			cachedKey, cached, cErr := recipe.ReadCache(cachePath)
			if cErr == nil && recipe.CacheValid(cachedKey, cacheKey) {
				return cached, nil
			}
		}
	}

	rcp, err := recipe.Parse(ctx, recipePath, pkgRoot, recipe.ParseOptions{
		Options:   options,
		Exports:   env.Exports(),
		Prefix:    env.Local,
		DestDir:   env.DestDir,
		Configure: true,
	})
	if err != nil {
		return nil, err
	}

	err = recipe.WriteCache(cachePath, cacheKey, rcp)
	if err != nil {
		// a broken cache only costs a reparse on the next run
		os.Remove(cachePath)
	}

	return rcp, nil
}
