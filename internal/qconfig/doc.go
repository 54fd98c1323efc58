// Package qconfig is the annotation front end for the observer-insertion
// pass: quantization configs written in CUE are compiled into matching
// rules, validated, and applied to a traced graph as per-node annotations.
package qconfig
