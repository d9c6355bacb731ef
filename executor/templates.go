/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-08-01 09:30:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-08-19 17:26:54
 * @FilePath: \go-taskfarm\executor\templates.go
 * @Description: 内置任务模板库，覆盖各任务类型的脚本样例
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package executor

import (
	"sort"

	"github.com/kamalyes/go-taskfarm/distributed/common"
)

// Template 预置任务模板，Code 为沙箱内可直接执行的脚本
type Template struct {
	Type        common.TaskType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Code        string          `json:"code"`
	SampleData  map[string]any  `json:"sample_data"`
}

// Templates 返回全部内置模板的副本，键为模板标识
func Templates() map[string]Template {
	out := make(map[string]Template, len(taskTemplates))
	for key, tpl := range taskTemplates {
		out[key] = tpl
	}
	return out
}

// TemplateNames 模板标识按字典序排列
func TemplateNames() []string {
	names := make([]string, 0, len(taskTemplates))
	for name := range taskTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupTemplate 按标识取模板
func LookupTemplate(name string) (Template, bool) {
	tpl, ok := taskTemplates[name]
	return tpl, ok
}

var taskTemplates = map[string]Template{
	"hello_world": {
		Type:        common.TaskTypeComputation,
		Name:        "Hello World Test",
		Description: "Simple test task to verify output display",
		Code: `
print("Hello from Worker!");
print("Task is executing...");

var name = data.name || "World";
var message = "Hello, " + name + "!";
print("Generated message: " + message);

result = {
    message: message,
    length: message.length,
    uppercase: message.toUpperCase(),
    status: "success"
};
print("Task completed successfully!");
`,
		SampleData: map[string]any{"name": "TaskFarm User"},
	},

	"fibonacci": {
		Type:        common.TaskTypeComputation,
		Name:        "Fibonacci Series",
		Description: "Generate Fibonacci series up to n terms and calculate the nth number",
		Code: `
function fibonacciSeries(n) {
    if (n <= 0) { return []; }
    if (n === 1) { return [0]; }
    var series = [0, 1];
    for (var i = 2; i < n; i++) {
        series.push(series[i - 1] + series[i - 2]);
    }
    return series;
}

function fibonacciNth(n) {
    if (n <= 1) { return n; }
    var a = 0, b = 1;
    for (var i = 2; i <= n; i++) {
        var next = a + b;
        a = b;
        b = next;
    }
    return b;
}

var n = data.n || 10;
var series = fibonacciSeries(n);
var sum = 0;
for (var i = 0; i < series.length; i++) { sum += series[i]; }

result = {
    series: series,
    nth_number: fibonacciNth(n),
    count: series.length,
    sum: sum
};
`,
		SampleData: map[string]any{"n": 10},
	},

	"prime_check": {
		Type:        common.TaskTypeComputation,
		Name:        "Prime Number Check",
		Description: "Check if a number is prime",
		Code: `
var math = require("math");

function isPrime(n) {
    if (n < 2) { return false; }
    var limit = math.floor(math.sqrt(n));
    for (var i = 2; i <= limit; i++) {
        if (n % i === 0) { return false; }
    }
    return true;
}

result = isPrime(data.number);
`,
		SampleData: map[string]any{"number": 982451653},
	},

	"factorial": {
		Type:        common.TaskTypeComputation,
		Name:        "Factorial Calculation",
		Description: "Calculate factorial of a number n (n!)",
		Code: `
function factorial(n) {
    if (n < 0) { throw new Error("factorial is not defined for negative numbers"); }
    var value = 1;
    for (var i = 2; i <= n; i++) { value *= i; }
    return value;
}

var n = data.n || 10;
result = {
    number: n,
    factorial: factorial(n),
    formula: n + "!"
};
`,
		SampleData: map[string]any{"n": 10},
	},

	"matrix_multiply": {
		Type:        common.TaskTypeComputation,
		Name:        "Matrix Multiplication",
		Description: "Multiply two matrices",
		Code: `
function matrixMultiply(a, b) {
    var rowsA = a.length, colsA = a[0].length;
    var rowsB = b.length, colsB = b[0].length;
    if (colsA !== rowsB) { throw new Error("cannot multiply matrices"); }

    var out = [];
    for (var i = 0; i < rowsA; i++) {
        var row = [];
        for (var j = 0; j < colsB; j++) {
            var sum = 0;
            for (var k = 0; k < colsA; k++) {
                sum += a[i][k] * b[k][j];
            }
            row.push(sum);
        }
        out.push(row);
    }
    return out;
}

result = matrixMultiply(data.matrix_a, data.matrix_b);
`,
		SampleData: map[string]any{
			"matrix_a": []any{[]any{1, 2}, []any{3, 4}},
			"matrix_b": []any{[]any{5, 6}, []any{7, 8}},
		},
	},

	"data_processing": {
		Type:        common.TaskTypeDataAnalysis,
		Name:        "Data Processing",
		Description: "Process and analyze numerical data",
		Code: `
var math = require("math");

function analyze(numbers) {
    var count = numbers.length;
    var sum = 0, min = numbers[0], max = numbers[0];
    for (var i = 0; i < count; i++) {
        sum += numbers[i];
        if (numbers[i] < min) { min = numbers[i]; }
        if (numbers[i] > max) { max = numbers[i]; }
    }
    var mean = sum / count;

    var sorted = numbers.slice().sort(function (a, b) { return a - b; });
    var median = count % 2 === 1
        ? sorted[(count - 1) / 2]
        : (sorted[count / 2 - 1] + sorted[count / 2]) / 2;

    var variance = 0;
    for (var j = 0; j < count; j++) {
        variance += math.pow(numbers[j] - mean, 2);
    }
    var stdDev = count > 1 ? math.sqrt(variance / (count - 1)) : 0;

    return {
        count: count,
        sum: sum,
        mean: mean,
        median: median,
        std_dev: stdDev,
        min: min,
        max: max
    };
}

report_progress(10);
result = analyze(data.numbers);
report_progress(100);
`,
		SampleData: map[string]any{
			"numbers": []any{12, 45, 23, 67, 34, 89, 21, 56, 43, 78},
		},
	},

	"image_stats": {
		Type:        common.TaskTypeImageProcessing,
		Name:        "Image Statistics",
		Description: "Calculate statistics from image pixel data",
		Code: `
function analyzeImage(pixels) {
    if (!pixels || pixels.length === 0 || !pixels[0] || pixels[0].length === 0) {
        return { error: "invalid image data" };
    }
    var height = pixels.length;
    var width = pixels[0].length;

    var values = [];
    for (var y = 0; y < height; y++) {
        for (var x = 0; x < pixels[y].length; x++) {
            var pixel = pixels[y][x];
            if (Array.isArray(pixel)) {
                for (var c = 0; c < pixel.length; c++) { values.push(pixel[c]); }
            } else {
                values.push(pixel);
            }
        }
    }
    if (values.length === 0) {
        return { error: "no pixel data" };
    }

    var sum = 0, min = values[0], max = values[0];
    for (var i = 0; i < values.length; i++) {
        sum += values[i];
        if (values[i] < min) { min = values[i]; }
        if (values[i] > max) { max = values[i]; }
    }

    return {
        width: width,
        height: height,
        total_pixels: width * height,
        min_value: min,
        max_value: max,
        avg_value: sum / values.length,
        total_values: values.length
    };
}

result = analyzeImage(data.pixels);
`,
		SampleData: map[string]any{
			"pixels": []any{
				[]any{[]any{255, 0, 0}, []any{0, 255, 0}, []any{0, 0, 255}},
				[]any{[]any{128, 128, 128}, []any{200, 200, 200}, []any{50, 50, 50}},
			},
		},
	},

	"text_sentiment": {
		Type:        common.TaskTypeTextAnalysis,
		Name:        "Text Sentiment Analysis",
		Description: "Analyze sentiment and extract key metrics from text",
		Code: `
function analyzeSentiment(text) {
    var positive = ["good", "great", "excellent", "amazing", "wonderful", "fantastic",
        "love", "best", "perfect", "happy", "beautiful", "awesome"];
    var negative = ["bad", "terrible", "awful", "horrible", "worst", "hate",
        "poor", "sad", "disappointing", "wrong", "failed", "error"];

    var words = text.toLowerCase().match(/\b\w+\b/g) || [];
    var positiveCount = 0, negativeCount = 0;
    for (var i = 0; i < words.length; i++) {
        if (positive.indexOf(words[i]) >= 0) { positiveCount++; }
        if (negative.indexOf(words[i]) >= 0) { negativeCount++; }
    }

    var total = positiveCount + negativeCount;
    var score = total > 0 ? (positiveCount - negativeCount) / total : 0;
    var sentiment = "NEUTRAL";
    if (score > 0.2) { sentiment = "POSITIVE"; }
    if (score < -0.2) { sentiment = "NEGATIVE"; }

    var sentences = text.split(/[.!?]+/).filter(function (s) { return s.trim().length > 0; });

    var freq = {};
    for (var j = 0; j < words.length; j++) {
        freq[words[j]] = (freq[words[j]] || 0) + 1;
    }
    var top = Object.keys(freq).sort(function (a, b) { return freq[b] - freq[a]; }).slice(0, 10);
    var common = {};
    for (var k = 0; k < top.length; k++) { common[top[k]] = freq[top[k]]; }

    return {
        sentiment: sentiment,
        sentiment_score: Math.round(score * 1000) / 1000,
        positive_words_count: positiveCount,
        negative_words_count: negativeCount,
        total_words: words.length,
        total_sentences: sentences.length,
        avg_words_per_sentence: sentences.length > 0 ? words.length / sentences.length : 0,
        most_common_words: common
    };
}

result = analyzeSentiment(data.text || "");
`,
		SampleData: map[string]any{
			"text": "This is a great product! I love it. The quality is excellent and the service was amazing. Highly recommended!",
		},
	},

	"base64_encoder": {
		Type:        common.TaskTypeCustom,
		Name:        "Base64 Encode/Decode",
		Description: "Encode or decode text using Base64",
		Code: `
var base64 = require("base64");

var operation = data.operation || "encode";
var text = data.text || "";

if (operation === "encode") {
    var encoded = base64.b64encode(text);
    result = {
        operation: "encode",
        original_text: text,
        encoded_text: encoded,
        original_length: text.length,
        encoded_length: encoded.length
    };
} else if (operation === "decode") {
    try {
        result = {
            operation: "decode",
            encoded_text: text,
            decoded_text: base64.b64decode(text),
            success: true
        };
    } catch (e) {
        result = { operation: "decode", success: false, error: String(e) };
    }
} else {
    result = { error: "invalid operation, use encode or decode" };
}
`,
		SampleData: map[string]any{"operation": "encode", "text": "Hello, World!"},
	},

	"hash_generator": {
		Type:        common.TaskTypeCustom,
		Name:        "Generate Hashes",
		Description: "Generate multiple hash values (MD5, SHA1, SHA256, SHA512) for data",
		Code: `
var crypto = require("crypto");

var input = data.data || "Hello, World!";
result = {
    input_data: input,
    input_length: input.length,
    hashes: {
        md5: crypto.md5(input),
        sha1: crypto.sha1(input),
        sha256: crypto.sha256(input),
        sha512: crypto.sha512(input)
    }
};
`,
		SampleData: map[string]any{"data": "Hello, World!"},
	},

	"simple_ml_prediction": {
		Type:        common.TaskTypeMachineLearning,
		Name:        "Simple Linear Regression",
		Description: "Train a simple linear regression model and make predictions",
		Code: `
function linearRegression(x, y) {
    var n = x.length;
    var meanX = 0, meanY = 0;
    for (var i = 0; i < n; i++) {
        meanX += x[i];
        meanY += y[i];
    }
    meanX /= n;
    meanY /= n;

    var numerator = 0, denominator = 0;
    for (var j = 0; j < n; j++) {
        numerator += (x[j] - meanX) * (y[j] - meanY);
        denominator += (x[j] - meanX) * (x[j] - meanX);
    }

    var m = denominator !== 0 ? numerator / denominator : 0;
    return { slope: m, intercept: meanY - m * meanX };
}

function predict(x, model) {
    var out = [];
    for (var i = 0; i < x.length; i++) {
        out.push(model.slope * x[i] + model.intercept);
    }
    return out;
}

var xTrain = data.x_train || [1, 2, 3, 4, 5];
var yTrain = data.y_train || [2, 4, 6, 8, 10];
var xTest = data.x_test || [6, 7, 8];

var model = linearRegression(xTrain, yTrain);
var predictions = predict(xTest, model);

var yPredTrain = predict(xTrain, model);
var meanY = 0;
for (var i = 0; i < yTrain.length; i++) { meanY += yTrain[i]; }
meanY /= yTrain.length;

var ssRes = 0, ssTot = 0;
for (var j = 0; j < yTrain.length; j++) {
    ssRes += (yTrain[j] - yPredTrain[j]) * (yTrain[j] - yPredTrain[j]);
    ssTot += (yTrain[j] - meanY) * (yTrain[j] - meanY);
}
var rSquared = ssTot !== 0 ? 1 - ssRes / ssTot : 0;

result = {
    model: {
        slope: Math.round(model.slope * 10000) / 10000,
        intercept: Math.round(model.intercept * 10000) / 10000
    },
    training: {
        samples: xTrain.length,
        r_squared: Math.round(rSquared * 10000) / 10000
    },
    predictions: {
        x_test: xTest,
        y_predicted: predictions
    }
};
`,
		SampleData: map[string]any{
			"x_train": []any{1, 2, 3, 4, 5},
			"y_train": []any{2, 4, 6, 8, 10},
			"x_test":  []any{6, 7, 8},
		},
	},

	"json_validator": {
		Type:        common.TaskTypeDataAnalysis,
		Name:        "JSON Validation & Analysis",
		Description: "Validate JSON structure and analyze its contents",
		Code: `
var json = require("json");

function countElements(obj, depth) {
    var counts = { objects: 0, arrays: 0, strings: 0, numbers: 0, booleans: 0, nulls: 0, max_depth: depth };
    function merge(sub) {
        counts.objects += sub.objects;
        counts.arrays += sub.arrays;
        counts.strings += sub.strings;
        counts.numbers += sub.numbers;
        counts.booleans += sub.booleans;
        counts.nulls += sub.nulls;
        if (sub.max_depth > counts.max_depth) { counts.max_depth = sub.max_depth; }
    }

    if (obj === null || obj === undefined) {
        counts.nulls++;
    } else if (Array.isArray(obj)) {
        counts.arrays++;
        for (var i = 0; i < obj.length; i++) { merge(countElements(obj[i], depth + 1)); }
    } else if (typeof obj === "object") {
        counts.objects++;
        var keys = Object.keys(obj);
        for (var j = 0; j < keys.length; j++) { merge(countElements(obj[keys[j]], depth + 1)); }
    } else if (typeof obj === "string") {
        counts.strings++;
    } else if (typeof obj === "boolean") {
        counts.booleans++;
    } else if (typeof obj === "number") {
        counts.numbers++;
    }
    return counts;
}

var raw = data.json_string || "{}";
try {
    var parsed = json.loads(raw);
    result = {
        valid: true,
        size_bytes: raw.length,
        structure: countElements(parsed, 0),
        pretty_printed: JSON.stringify(parsed, null, 2).slice(0, 500)
    };
} catch (e) {
    result = { valid: false, error: String(e) };
}
`,
		SampleData: map[string]any{
			"json_string": `{"name": "John", "age": 30, "hobbies": ["reading", "gaming"], "active": true}`,
		},
	},

	"api_weather_fetch": {
		Type:        common.TaskTypeAPIRequest,
		Name:        "Fetch Weather Data (Mock)",
		Description: "Simulate fetching weather data from an API",
		Code: `
var random = require("random");
var time = require("time");

function mockWeather(city) {
    var conditions = ["Sunny", "Cloudy", "Rainy", "Partly Cloudy", "Stormy", "Foggy"];
    var temperature = random.randint(-10, 40);
    var windSpeed = random.randint(0, 50);
    return {
        city: city,
        temperature_celsius: temperature,
        temperature_fahrenheit: Math.round((temperature * 9 / 5 + 32) * 10) / 10,
        condition: random.choice(conditions),
        humidity_percent: random.randint(30, 90),
        wind_speed_kmh: windSpeed,
        timestamp: time.time(),
        feels_like: windSpeed > 20 ? temperature - 2 : temperature,
        uv_index: random.randint(1, 11),
        note: "mock data for demonstration purposes"
    };
}

result = mockWeather(data.city || "New York");
`,
		SampleData: map[string]any{"city": "New York"},
	},

	"performance_benchmark": {
		Type:        common.TaskTypeCustom,
		Name:        "CPU Performance Benchmark",
		Description: "Run integer, floating point and string benchmarks to gauge worker speed",
		Code: `
var math = require("math");
var time = require("time");

function opsPerSecond(iterations, elapsed) {
    return elapsed > 0 ? Math.round(iterations / elapsed) : 0;
}

function benchInteger(iterations) {
    var start = time.time();
    var total = 0;
    for (var i = 0; i < iterations; i++) { total += i * 2; }
    var elapsed = time.time() - start;
    return { test: "integer operations", iterations: iterations, time_seconds: elapsed, ops_per_second: opsPerSecond(iterations, elapsed) };
}

function benchFloat(iterations) {
    var start = time.time();
    var total = 0;
    for (var i = 0; i < iterations; i++) { total += math.sqrt(i) * 1.5; }
    var elapsed = time.time() - start;
    return { test: "floating point operations", iterations: iterations, time_seconds: elapsed, ops_per_second: opsPerSecond(iterations, elapsed) };
}

function benchString(iterations) {
    var start = time.time();
    var s = "";
    for (var i = 0; i < iterations; i++) { s = "string_" + i; }
    var elapsed = time.time() - start;
    return { test: "string operations", iterations: iterations, time_seconds: elapsed, ops_per_second: opsPerSecond(iterations, elapsed) };
}

var iterations = data.iterations || 100000;
report_progress(5);
var benchmarks = [benchInteger(iterations)];
report_progress(40);
benchmarks.push(benchFloat(iterations));
report_progress(70);
benchmarks.push(benchString(Math.floor(iterations / 10)));
report_progress(100);

var totalTime = 0;
for (var i = 0; i < benchmarks.length; i++) { totalTime += benchmarks[i].time_seconds; }

result = {
    total_time_seconds: totalTime,
    benchmarks: benchmarks
};
`,
		SampleData: map[string]any{"iterations": 100000},
	},
}
