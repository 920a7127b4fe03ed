// Package openai implements generation.Generator against any OpenAI-compatible
// chat completions endpoint (OpenAI, DeepSeek, local gateways) using
// github.com/sashabaranov/go-openai. The base URL is configurable.
package openai
