// Package generation defines the text generation capability the writing
// pipeline consumes: a Generator that expands a chapter into scene stubs and
// writes prose for one scene. Provider adapters (Gemini, OpenAI) live under
// internal/platform and translate their failures into this package's error
// taxonomy.
package generation
