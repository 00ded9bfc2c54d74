// Package health implements the convergence conditions polled while a
// cluster comes up: monitor map size, OSDs up and overall HEALTH_OK.
package health
