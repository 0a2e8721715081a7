// Package dedupe drops webhook redeliveries: a message id claimed within the
// configured window is not processed a second time.
package dedupe
