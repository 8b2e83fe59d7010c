// Package recipe loads spkg.star package recipes and executes their tasks.
package recipe
