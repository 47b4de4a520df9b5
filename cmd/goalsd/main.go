// @title           Production Goals API
// @version         1.0
// @description     Shared production quotas with idempotent contributions and automatic completion archiving.
// @BasePath        /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"os"

	_ "github.com/tbourn/go-production-goals/docs"
	"github.com/tbourn/go-production-goals/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		os.Exit(1)
	}
}
