// Package unifiedllm is a small provider-agnostic LLM client used by the
// agent loop.
//
// A [Client] routes each [Request] to a registered [ProviderAdapter] and runs
// it through the configured [Middleware]. The only production adapter is
// [GollmAdapter], which wraps github.com/teilomillet/gollm and recovers tool
// calls from the provider's text output.
//
//	adapter, _ := unifiedllm.NewGollmAdapter("openai", apiKey,
//	    unifiedllm.WithModel("gpt-4o-mini"), unifiedllm.WithTemperature(0.1))
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openai", adapter))
//
//	resp, err := unifiedllm.Retry(ctx, unifiedllm.DefaultRetryPolicy(),
//	    func(ctx context.Context) (*unifiedllm.Response, error) {
//	        return client.Complete(ctx, req)
//	    })
//
// Provider failures are classified into the error types in errors.go;
// [IsRetryable] decides which of them [Retry] will attempt again.
package unifiedllm
