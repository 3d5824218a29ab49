// Package smithy is the client runtime for generated service clients. It turns
// a typed operation input into a signed, retried, timeout-bounded HTTP
// exchange and back into a typed output or a classified error:
//
//   - ConfigBag: layered, typed configuration with frozen layers and a
//     mutable interceptor state on top
//   - RuntimePlugins: ordered contributors of config layers and runtime
//     components, applied at client and then operation level
//   - Orchestrator: a phase state machine with nineteen interceptor hooks,
//     each with a defined failure redirection
//   - Identity cache: lazy, partitioned by resolver, single-flight loads,
//     refreshed ahead of expiry by a jittered buffer
//   - Retries: standard strategy with a retry quota and full-jitter backoff,
//     plus the adaptive client rate limiter driven by cubic curves
//   - Operation and attempt timeouts driven by an injectable sleeper
//   - Prometheus metrics, zap logging and OpenTelemetry spans as interceptors
//
// Typical usage:
//
//	client := smithy.NewClient(
//	    smithy.WithServiceName("Things"),
//	    smithy.WithEndpointURL("https://things.example.com"),
//	    smithy.WithMaxAttempts(3),
//	    smithy.WithRetryMode(smithy.RetryModeAdaptive),
//	)
//	op, err := smithy.NewOperationBuilder[GetThingInput, GetThingOutput]().
//	    Client(client).
//	    OperationName("GetThing").
//	    Serializer(serializeGetThing).
//	    Deserializer(deserializeGetThing).
//	    Build()
//	out, err := op.Invoke(ctx, GetThingInput{ID: "42"})
//
// Concrete credential providers live in the credentials package and request
// signers in the signer package.
package smithy
