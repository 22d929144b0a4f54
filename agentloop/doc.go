// Package agentloop implements a reason-act loop that pairs a language model
// with a set of tools.
//
// A Session sends the conversation and the tool definitions from its
// ProviderProfile to a unifiedllm.Client. When the model asks for tools the
// session runs them through the ToolRegistry, appends the truncated results
// to the history and calls the model again. The loop ends when the model
// answers without requesting tools, which FinalResponse then returns.
//
// LLM calls are retried according to SessionConfig.RetryPolicy. Tool calls
// are never retried: a failing tool is reported to the model, which decides
// what to do next.
//
//	registry := agentloop.NewToolRegistry()
//	// register tools, e.g. with mcpclient.LoadTools
//	profile := agentloop.NewOpenAIProfile("gpt-4o-mini", registry)
//	session := agentloop.NewSession(profile, env, client, nil)
//	defer session.Close()
//
//	if err := session.Submit(ctx, "Print the first ten primes"); err != nil {
//	    return err
//	}
//	answer, _ := session.FinalResponse()
package agentloop
