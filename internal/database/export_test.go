package database

var Classify = classify
