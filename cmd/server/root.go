package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "together-stream",
	Short: "Watch-together room server: playback sync, chat, WebRTC signaling relay",
	Long:  `HTTP + WebSocket server. Commands: serve (default), client.`,
	RunE:  runServe, // 默认等同于 "together-stream serve"
	// 出错时不打印 usage
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clientCmd)
}
