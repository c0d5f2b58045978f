package main

import (
	"market-sentinel/src/logger"
	"market-sentinel/src/server"
)

// -----------------------------------------------------------------------------

// startServers runs the read API in the background
func startServers(srv *server.APIServer, appLogger *logger.Logger) {
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()
}

// -----------------------------------------------------------------------------

func stopServers(srv *server.APIServer, appLogger *logger.Logger) {
	if err := srv.Stop(); err != nil {
		appLogger.Warning("Server shutdown: %v", err)
	}
}
